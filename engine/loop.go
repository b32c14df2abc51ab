package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultTickInterval is how often a Loop ticks when no interval is given.
// The engine throttles dispatch on its own, so this only bounds latency.
const DefaultTickInterval = 50 * time.Millisecond

// TickFunc is called by the Loop on every tick.
type TickFunc func(now time.Time)

// Loop is the cooperative scheduler the engine lives on: one goroutine that
// runs posted functions and periodic ticks, strictly one at a time. Socket
// events are posted to it, so the engine never needs a lock.
type Loop struct {
	tasks    chan func()
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewLoop creates a Loop. It does nothing until Start is called.
func NewLoop(ctx context.Context, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Loop{
		tasks:    make(chan func(), 64),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the loop goroutine. tick may be nil. Only the first call
// has an effect.
func (l *Loop) Start(tick TickFunc) {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run(tick)
	})
}

func (l *Loop) run(tick TickFunc) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		// Prioritize context cancellation checking
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		case now := <-ticker.C:
			if tick != nil {
				tick(now)
			}
		}
	}
}

// Post queues fn to run on the loop goroutine. It blocks while the queue is
// full and reports false if the loop stopped first.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}

	select {
	case <-l.ctx.Done():
		return false
	case l.tasks <- fn:
		return true
	}
}

// Do runs fn on the loop goroutine and waits for it to return. It reports
// false if the loop stopped before fn ran. Do must not be called from the
// loop goroutine itself.
func (l *Loop) Do(fn func()) bool {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}

	select {
	case <-done:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed once the loop has been stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.ctx.Done()
}

// Stop terminates the loop and waits for the goroutine to exit. Functions
// still queued are discarded.
func (l *Loop) Stop() {
	l.cancel()
	l.wg.Wait()
}
