package face

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingDetector signals each call on started and holds it until release
// is closed or the context ends.
type blockingDetector struct {
	started chan struct{}
	release chan struct{}
}

func (d *blockingDetector) Detect(ctx context.Context, _ []byte, _ string) ([]Descriptor, error) {
	d.started <- struct{}{}
	select {
	case <-d.release:
		return []Descriptor{{1, 2, 3}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPool_Detect(t *testing.T) {
	p := NewPool(staticDetector{faces: []Descriptor{{0.5}}}, 2, 4, time.Second)
	defer p.Close()

	faces, err := p.Detect(context.Background(), []byte("img"), "x.png")
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{0.5}}, faces)
}

func TestPool_BusyWhenQueueFull(t *testing.T) {
	det := &blockingDetector{started: make(chan struct{}, 2), release: make(chan struct{})}
	p := NewPool(det, 1, 1, 5*time.Second)
	defer p.Close()

	errs := make(chan error, 2)
	submit := func(name string) {
		_, err := p.Detect(context.Background(), []byte(name), name+".jpg")
		errs <- err
	}

	go submit("running")
	<-det.started
	go submit("queued")
	require.Eventually(t, func() bool { return len(p.tasks) == 1 }, time.Second, time.Millisecond)

	_, err := p.Detect(context.Background(), []byte("rejected"), "rejected.jpg")
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, Retryable(err))

	close(det.release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestPool_Timeout(t *testing.T) {
	det := &blockingDetector{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := NewPool(det, 1, 1, 20*time.Millisecond)
	defer p.Close()

	_, err := p.Detect(context.Background(), []byte("a"), "a.jpg")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, Retryable(err))
}

func TestPool_ClosedRejects(t *testing.T) {
	p := NewPool(staticDetector{}, 1, 1, time.Second)
	p.Close()

	_, err := p.Detect(context.Background(), []byte("a"), "a.jpg")
	assert.ErrorIs(t, err, ErrNotReady)
}
