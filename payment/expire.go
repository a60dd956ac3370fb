package payment

import (
	"context"
	"sync"
	"time"

	"qinfinity/clockid"
)

// expiryInterval is the background sweep cadence spec §4.8 mandates.
const expiryInterval = 5 * time.Minute

// ExpiryTask runs Engine.Expire on a fixed interval until stopped, grounded
// on the teacher's explicit start()/stop() lifecycle for background workers
// rather than a bare goroutine with no shutdown path.
type ExpiryTask struct {
	engine *Engine
	clock  clockid.Clock
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewExpiryTask constructs an ExpiryTask bound to engine. interval
// overrides the default 5-minute sweep cadence when positive, for tests.
func NewExpiryTask(engine *Engine, clock clockid.Clock, interval time.Duration) *ExpiryTask {
	if interval <= 0 {
		interval = expiryInterval
	}
	return &ExpiryTask{
		engine: engine,
		clock:  clock,
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
}

// Start launches the background sweep loop. It must be paired with Stop.
func (t *ExpiryTask) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case <-t.ticker.C:
				t.engine.Expire(ctx, t.clock.Now())
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the goroutine to exit.
func (t *ExpiryTask) Stop() {
	t.ticker.Stop()
	close(t.done)
	t.wg.Wait()
}
