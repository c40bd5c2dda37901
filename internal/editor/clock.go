package editor

import "time"

// Clock schedules callbacks. The controller never sleeps; every delay goes
// through a Clock so tests can drive debounce and confirmation expiry by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

// RealClock schedules callbacks with time.AfterFunc.
type RealClock struct{}

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSlot owns at most one pending callback. Scheduling replaces (and stops)
// the previous one. Every change bumps gen, so a callback that already fired
// but is still waiting for the controller lock can tell it has been superseded.
//
// A timerSlot is guarded by the controller's mutex.
type timerSlot struct {
	timer Timer
	gen   uint64
}

// replace stops any pending callback and schedules fn after d. fn receives the
// generation it was scheduled under and must pass it to fired.
func (s *timerSlot) replace(clock Clock, d time.Duration, fn func(gen uint64)) {
	s.stop()
	s.gen++
	gen := s.gen
	s.timer = clock.AfterFunc(d, func() { fn(gen) })
}

// stop cancels the pending callback, if any. It reports whether one was pending.
func (s *timerSlot) stop() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
	return true
}

// pending reports whether a callback is scheduled and not yet consumed.
func (s *timerSlot) pending() bool {
	return s.timer != nil
}

// fired consumes the slot for a callback scheduled under gen. It returns false
// for a stale callback, which must then do nothing.
func (s *timerSlot) fired(gen uint64) bool {
	if s.timer == nil || gen != s.gen {
		return false
	}
	s.timer = nil
	return true
}
