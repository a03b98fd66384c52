package rbxlx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mshq-dev/oraclectl/internal/observability"
)

// Tracker holds the pipeline's shared counters. They are observation-only:
// nothing in the pipeline makes a control decision from them.
type Tracker struct {
	discovered   atomic.Uint64
	resolved     atomic.Uint64
	producerDone atomic.Bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Discover() {
	t.discovered.Add(1)
	observability.RecordDiscovered()
}

func (t *Tracker) Resolve() {
	t.resolved.Add(1)
	observability.RecordResolved()
}

func (t *Tracker) MarkProducerDone() {
	t.producerDone.Store(true)
}

// Snapshot returns (discovered, resolved, producer finished).
func (t *Tracker) Snapshot() (uint64, uint64, bool) {
	return t.discovered.Load(), t.resolved.Load(), t.producerDone.Load()
}

// Reporter periodically logs decompilation progress. It only ever reads the
// tracker and has no effect on pipeline behavior.
type Reporter struct {
	tracker  *Tracker
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewReporter(tracker *Tracker, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{
		tracker:  tracker,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins reporting. The reporter retires on its own once the producer
// has finished and every discovered node has resolved.
func (r *Reporter) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				discovered, resolved, producerDone := r.tracker.Snapshot()
				if discovered > 0 {
					log.Info().
						Uint64("resolved", resolved).
						Uint64("discovered", discovered).
						Str("progress", percent(resolved, discovered)).
						Msg("decompilation progress")
				}
				if producerDone && resolved >= discovered {
					return
				}
			}
		}
	}()
}

// Stop ends reporting early and waits for the loop to exit.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func percent(resolved, discovered uint64) string {
	if discovered == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(resolved)/float64(discovered)*100)
}
