package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "scan", cfg.MatchStrategy)
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, 0.6, cfg.MatchThreshold)
	assert.True(t, cfg.DownloadRequireMatch)
	assert.Equal(t, "local", cfg.Blob.Backend)
	assert.Equal(t, "uploads", cfg.Blob.UploadDir)
	assert.Equal(t, "gallery-images", cfg.Blob.MinIO.Bucket)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("MATCH_STRATEGY", "scan")
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("JWT_TTL", "30m")
	t.Setenv("FACE_SKIP", "true")
	t.Setenv("EXTRACT_WORKERS", "not-a-number")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("BLOB_BACKEND", "minio")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 0.45, cfg.MatchThreshold)
	assert.Equal(t, 30*time.Minute, cfg.JWTTTL)
	assert.True(t, cfg.FaceSkip)
	assert.Equal(t, 4, cfg.ExtractWorkers)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "minio", cfg.Blob.Backend)
	assert.Equal(t, "minio:9000", cfg.Blob.MinIO.Endpoint)
	assert.True(t, cfg.Blob.MinIO.UseSSL)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	require.NoError(t, base.Validate())

	bad := base
	bad.StoreBackend = "memory"
	require.NoError(t, bad.Validate(), "scan works on the memory store")
	bad.MatchStrategy = "index"
	assert.ErrorContains(t, bad.Validate(), "MATCH_STRATEGY=index needs STORE_BACKEND=postgres")

	bad = base
	bad.Blob.Backend = "cloudinary"
	assert.ErrorContains(t, bad.Validate(), "CLOUDINARY_CLOUD_NAME")

	bad = base
	bad.Env = "production"
	assert.ErrorContains(t, bad.Validate(), "JWT_SIGNING_KEY")

	bad = base
	bad.QueueBackend = "kafka"
	bad.MatchThreshold = 0
	err = bad.Validate()
	assert.ErrorContains(t, err, "QUEUE_BACKEND")
	assert.ErrorContains(t, err, "MATCH_THRESHOLD")
}

func TestBlob_Storage(t *testing.T) {
	b := Blob{
		Backend:    "minio",
		UploadDir:  "/var/uploads",
		MinIO:      MinIO{Endpoint: "minio:9000", Bucket: "imgs", UseSSL: true},
		Cloudinary: Cloudinary{CloudName: "demo", Folder: "f"},
	}
	got := b.Storage()
	assert.Equal(t, "minio", got.Backend)
	assert.Equal(t, "/var/uploads", got.Dir)
	assert.Equal(t, "imgs", got.MinIO.Bucket)
	assert.True(t, got.MinIO.UseSSL)
	assert.Equal(t, "demo", got.Cloudinary.CloudName)
}
