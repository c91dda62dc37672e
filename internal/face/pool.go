package face

import (
	"context"
	"errors"
	"sync"
	"time"

	"facegallery/internal/metrics"
)

type task struct {
	ctx      context.Context
	image    []byte
	filename string
	done     chan result
}

type result struct {
	faces []Descriptor
	err   error
}

// Pool runs extractions on a fixed set of workers behind a bounded queue.
// Submissions never block: a full queue fails fast with ErrBusy.
type Pool struct {
	detector Detector
	timeout  time.Duration
	tasks    chan task
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewPool starts workers goroutines pulling from a queue of queueSize slots.
// timeout bounds each extraction, measured from submission.
func NewPool(d Detector, workers, queueSize int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		detector: d,
		timeout:  timeout,
		tasks:    make(chan task, queueSize),
		quit:     make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Detect implements Detector.
func (p *Pool) Detect(ctx context.Context, image []byte, filename string) ([]Descriptor, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	t := task{ctx: ctx, image: image, filename: filename, done: make(chan result, 1)}
	select {
	case <-p.quit:
		return nil, ErrNotReady
	default:
	}
	select {
	case p.tasks <- t:
		metrics.ExtractQueued.Inc()
	default:
		metrics.ExtractRejected.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}

	select {
	case r := <-t.done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			metrics.ExtractRejected.WithLabelValues("timeout").Inc()
			return nil, ErrTimeout
		}
		return r.faces, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ExtractRejected.WithLabelValues("timeout").Inc()
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Close stops the workers once the in-flight extractions return.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.tasks:
			metrics.ExtractQueued.Dec()
			p.run(t)
		}
	}
}

func (p *Pool) run(t task) {
	// the submitter already gave up
	if t.ctx.Err() != nil {
		t.done <- result{err: t.ctx.Err()}
		return
	}

	metrics.ExtractInFlight.Inc()
	start := time.Now()
	faces, err := p.detector.Detect(t.ctx, t.image, t.filename)
	metrics.ExtractDuration.Observe(time.Since(start).Seconds())
	metrics.ExtractInFlight.Dec()

	t.done <- result{faces: faces, err: err}
}
