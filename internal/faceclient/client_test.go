package faceclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegallery/internal/face"
)

func TestClient_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "selfie.jpg", header.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"faces": []map[string]any{
				{"descriptor": []float32{0.1, 0.2}, "score": 0.99},
				{"descriptor": []float32{0.3, 0.4}, "score": 0.87},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	faces, err := c.Detect(context.Background(), []byte("jpeg-bytes"), "selfie.jpg")
	require.NoError(t, err)
	assert.Equal(t, []face.Descriptor{{0.1, 0.2}, {0.3, 0.4}}, faces)

	_, err = face.ExtractOne(context.Background(), c, []byte("jpeg-bytes"), "selfie.jpg")
	assert.ErrorIs(t, err, face.ErrMultipleFaces)
}

func TestClient_DetectNoFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"faces":[]}`))
	}))
	defer srv.Close()

	_, err := face.ExtractOne(context.Background(), New(srv.URL, false), []byte("x"), "x.png")
	assert.ErrorIs(t, err, face.ErrNoFace)
}

func TestClient_DetectServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Detect(context.Background(), []byte("x"), "x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestClient_DetectEmptyDescriptor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"faces":[{"descriptor":[],"score":0.5}]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Detect(context.Background(), []byte("x"), "x.png")
	assert.Error(t, err)
}

func TestClient_SkipIsDeterministic(t *testing.T) {
	c := New("http://unused", true)

	a, err := c.Detect(context.Background(), []byte("same"), "a.jpg")
	require.NoError(t, err)
	b, err := c.Detect(context.Background(), []byte("same"), "b.jpg")
	require.NoError(t, err)
	other, err := c.Detect(context.Background(), []byte("different"), "c.jpg")
	require.NoError(t, err)

	require.Len(t, a, 1)
	assert.Len(t, a[0], StubDimension)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)

	require.NoError(t, c.Health(context.Background()))
}

func TestClient_Health(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	assert.NoError(t, c.Health(context.Background()))

	unhealthy.Store(true)
	assert.Error(t, c.Health(context.Background()))
}
