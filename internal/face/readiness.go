package face

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"facegallery/internal/metrics"
)

// State is a step of the model lifecycle.
type State int32

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Readiness tracks whether extraction can be served. It moves
// Uninitialized -> Loading -> Ready or Failed exactly once.
type Readiness struct {
	state atomic.Int32

	mu  sync.Mutex
	err error
}

// State returns the current lifecycle state.
func (r *Readiness) State() State {
	return State(r.state.Load())
}

// Err returns the error that moved the lifecycle to Failed.
func (r *Readiness) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Check returns nil when Ready and an ErrNotReady wrap otherwise.
func (r *Readiness) Check() error {
	if s := r.State(); s != Ready {
		return fmt.Errorf("%w: %s", ErrNotReady, s)
	}
	return nil
}

// Load runs check until it succeeds or attempts run out, waiting interval
// between tries. A second call returns an error without checking again.
func (r *Readiness) Load(ctx context.Context, check func(context.Context) error, attempts int, interval time.Duration) error {
	if !r.state.CompareAndSwap(int32(Uninitialized), int32(Loading)) {
		return errors.New("face models already loading or loaded")
	}
	if attempts <= 0 {
		attempts = 1
	}

	var err error
retry:
	for i := 0; i < attempts; i++ {
		if err = check(ctx); err == nil {
			r.state.Store(int32(Ready))
			metrics.FaceReady.Set(1)
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(interval):
		}
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.state.Store(int32(Failed))
	metrics.FaceReady.Set(0)
	return fmt.Errorf("load face models: %w", err)
}
