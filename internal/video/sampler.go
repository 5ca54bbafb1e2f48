package video

import (
	"context"
	"time"
)

// Ticker is the periodic clock driving the sampler.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// sampler is the single recurring task of a session. stop cancels it and
// returns only once its goroutine has exited, so no sample can be sent after
// stop returns.
type sampler struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startSampler runs first once, then sample on every tick.
func startSampler(t Ticker, first, sample func(ctx context.Context)) *sampler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &sampler{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer t.Stop()

		if ctx.Err() == nil {
			first(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				if ctx.Err() != nil {
					return
				}
				sample(ctx)
			}
		}
	}()
	return s
}

func (s *sampler) stop() {
	s.cancel()
	<-s.done
}
