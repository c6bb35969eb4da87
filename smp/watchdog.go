package smp

import (
	"sync"
	"sync/atomic"
	"time"
)

// Watchdog periodically walks a set of in-progress PairingData records
// and reports any that have made no progress within the period, per spec
// section 4.7's "adapter-level simple-timer". One instance is enough per
// adapter.
type Watchdog struct {
	period time.Duration
	stale  time.Duration

	mu      sync.Mutex
	tracked map[*PairingData]struct{}

	started int32
	stop    chan struct{}
	done    chan struct{}
}

// NewWatchdog returns a Watchdog that fires every period and considers a
// device stuck if it has made no progress for at least stale.
func NewWatchdog(period, stale time.Duration) *Watchdog {
	return &Watchdog{
		period:  period,
		stale:   stale,
		tracked: map[*PairingData]struct{}{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Track adds d to the watched set; pairing begun on d should call this
// once.
func (w *Watchdog) Track(d *PairingData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[d] = struct{}{}
}

// Untrack removes d, called once pairing reaches COMPLETED or FAILED.
func (w *Watchdog) Untrack(d *PairingData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, d)
}

// Run starts the periodic walk; onStuck is invoked (and the entry
// untracked) for every device that has not progressed within stale.
func (w *Watchdog) Run(onStuck func(*PairingData)) {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return
	}
	go func() {
		defer close(w.done)
		t := time.NewTicker(w.period)
		defer t.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-t.C:
				w.sweep(onStuck)
			}
		}
	}()
}

func (w *Watchdog) sweep(onStuck func(*PairingData)) {
	w.mu.Lock()
	stuck := make([]*PairingData, 0)
	for d := range w.tracked {
		if d.State != StateCompleted && d.State != StateFailed && d.SinceProgress() > w.stale {
			stuck = append(stuck, d)
			delete(w.tracked, d)
		}
	}
	w.mu.Unlock()
	for _, d := range stuck {
		d.Fail()
		if onStuck != nil {
			onStuck(d)
		}
	}
}

// Stop halts the periodic walk and waits for it to exit. A Watchdog whose
// Run was never called (e.g. an Adapter closed before it was opened) has
// no goroutine to wait for.
func (w *Watchdog) Stop() {
	if atomic.LoadInt32(&w.started) == 0 {
		return
	}
	close(w.stop)
	<-w.done
}
