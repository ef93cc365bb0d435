package timectrl

import (
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components that
// care only about "now" (snapshot timestamps, incident ages) depend on this
// abstraction rather than the concrete controller, which keeps them testable.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time: one tick per Tick
	// interval.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still
	// stepping simulation time by Tick, for fast test and replay runs.
	Accelerated
)

// TimeController drives the fixed-timestep simulation loop and notifies
// registered listeners on every tick. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(simTime time.Time, dt time.Duration)

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
		stop:        make(chan struct{}),
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime overrides the current simulation time. Intended for tests and
// scenario replays; do not call while Start is running.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick with the new
// simulation time and the timestep. Register all listeners before Start.
func (tc *TimeController) AddListener(fn func(simTime time.Time, dt time.Duration)) {
	tc.listeners = append(tc.listeners, fn)
}

// Stop terminates a running controller. Safe to call more than once.
func (tc *TimeController) Stop() {
	tc.stopOnce.Do(func() { close(tc.stop) })
}

// Start runs the controller in a separate goroutine for the specified
// duration, or until Stop is called; a non-positive duration runs
// indefinitely. It returns a channel that is closed when the loop finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		elapsed := time.Duration(0)

		var tickC <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tickC = ticker.C
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if tickC != nil {
				select {
				case <-tc.stop:
					return
				case <-tickC:
				}
			} else {
				select {
				case <-tc.stop:
					return
				default:
				}
			}

			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.mu.Unlock()

			for _, fn := range tc.listeners {
				fn(simTime, tc.Tick)
			}
		}
	}()
	return done
}
