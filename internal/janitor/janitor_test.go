package janitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegallery/internal/blob"
	"facegallery/internal/logging"
	"facegallery/internal/queue"
)

type flakyBlobs struct {
	mu       sync.Mutex
	failures int
	deleted  []string
	calls    int
}

func (f *flakyBlobs) Put(context.Context, string, io.Reader, int64) error { return nil }

func (f *flakyBlobs) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *flakyBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if key == "missing.jpg" {
		return blob.ErrNotFound
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("storage unavailable")
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *flakyBlobs) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...), f.calls
}

func runJanitor(t *testing.T, j *Janitor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = j.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestScheduleDelete_RejectsBadKey(t *testing.T) {
	j := New(queue.NewInMemory(1), &flakyBlobs{}, logging.Discard())
	assert.Error(t, j.ScheduleDelete(context.Background(), "../etc/passwd"))
}

func TestRun_DeletesScheduledBlob(t *testing.T) {
	blobs := &flakyBlobs{}
	j := New(queue.NewInMemory(4), blobs, logging.Discard())
	runJanitor(t, j)

	require.NoError(t, j.ScheduleDelete(context.Background(), "a.jpg"))
	require.Eventually(t, func() bool {
		deleted, _ := blobs.snapshot()
		return len(deleted) == 1
	}, time.Second, 5*time.Millisecond)

	deleted, _ := blobs.snapshot()
	assert.Equal(t, []string{"a.jpg"}, deleted)
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	blobs := &flakyBlobs{failures: 2}
	j := New(queue.NewInMemory(4), blobs, logging.Discard(), WithRetry(5, 0))
	runJanitor(t, j)

	require.NoError(t, j.ScheduleDelete(context.Background(), "b.png"))
	require.Eventually(t, func() bool {
		deleted, _ := blobs.snapshot()
		return len(deleted) == 1
	}, time.Second, 5*time.Millisecond)

	_, calls := blobs.snapshot()
	assert.Equal(t, 3, calls)
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	blobs := &flakyBlobs{failures: 10}
	j := New(queue.NewInMemory(4), blobs, logging.Discard(), WithRetry(3, 0))
	runJanitor(t, j)

	require.NoError(t, j.ScheduleDelete(context.Background(), "c.gif"))
	require.Eventually(t, func() bool {
		_, calls := blobs.snapshot()
		return calls == 3
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	deleted, calls := blobs.snapshot()
	assert.Empty(t, deleted)
	assert.Equal(t, 3, calls)
}

func TestRun_MissingBlobIsDone(t *testing.T) {
	blobs := &flakyBlobs{}
	j := New(queue.NewInMemory(4), blobs, logging.Discard())
	runJanitor(t, j)

	require.NoError(t, j.ScheduleDelete(context.Background(), "missing.jpg"))
	require.NoError(t, j.ScheduleDelete(context.Background(), "d.jpg"))
	require.Eventually(t, func() bool {
		deleted, _ := blobs.snapshot()
		return len(deleted) == 1
	}, time.Second, 5*time.Millisecond)

	_, calls := blobs.snapshot()
	assert.Equal(t, 2, calls)
}
