// Package timekeeper provides the one-shot and exponential-backoff timers PWS
// uses for ack debouncing and journal retransmission; it has no
// fixed-interval periodic timer. Cancellation
// is idempotent and race-free with the callback firing, matching the
// teacher's ticker-based pump shutdown discipline (internal/shared/pump_write.go).
package timekeeper

import (
	"sync"
	"time"
)

// OneShot is a single-fire timer that can be (re)armed and cancelled from
// multiple goroutines. Firing invokes fn exactly once per Arm call, unless
// Cancel wins the race.
type OneShot struct {
	mu    sync.Mutex
	timer *time.Timer
}

// NewOneShot returns an unarmed one-shot timer.
func NewOneShot() *OneShot { return &OneShot{} }

// Arm schedules fn to run after d, replacing any pending fire. Idle ->
// Armed -> Idle per spec §4.3's ack timer state machine.
func (o *OneShot) Arm(d time.Duration, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(d, fn)
}

// ArmIfIdle schedules fn only if the timer is idle, returning whether it
// armed. The timer is idle until first armed and again after Cancel; a timer
// armed here stays non-idle after it fires, until Cancel (ArmIfIdleAutoClear
// returns to idle by itself).
func (o *OneShot) ArmIfIdle(d time.Duration, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		return false
	}
	o.timer = time.AfterFunc(d, fn)
	return true
}

// Cancel stops any pending fire. Safe to call when idle or concurrently
// with the callback.
func (o *OneShot) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// clear marks the timer idle after it fires, so ArmIfIdle can re-arm.
func (o *OneShot) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timer = nil
}

// ArmIfIdleAutoClear behaves like ArmIfIdle but automatically clears the
// idle flag after fn returns, so the timer can be armed again on the next
// unacked chunk without an explicit Cancel.
func (o *OneShot) ArmIfIdleAutoClear(d time.Duration, fn func()) bool {
	return o.ArmIfIdle(d, func() {
		fn()
		o.clear()
	})
}

// Backoff is an exponential-backoff periodic timer: it fires repeatedly,
// doubling its interval each tick up to a cap, and resets to its initial
// interval whenever Reset is called (spec §4.3 journal timer:
// "Idle -> Running(timeout); timeout doubles to cap 30s; reset on
// successful ack").
type Backoff struct {
	mu      sync.Mutex
	initial time.Duration
	cap     time.Duration
	cur     time.Duration
	timer   *time.Timer
	running bool
}

// NewBackoff returns a backoff timer starting at initial, doubling up to cap.
func NewBackoff(initial, cap time.Duration) *Backoff {
	return &Backoff{initial: initial, cap: cap, cur: initial}
}

// Start arms the timer if not already running, at the current interval.
// fn is invoked on each tick and is responsible for calling Tick (to
// reschedule with a doubled interval) or Stop.
func (b *Backoff) Start(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.schedule(fn)
}

func (b *Backoff) schedule(fn func()) {
	b.timer = time.AfterFunc(b.cur, func() {
		fn()
	})
}

// Tick reschedules the timer with the interval doubled (capped), to be
// called by fn after each fire while the journal remains non-empty.
func (b *Backoff) Tick(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.cur *= 2
	if b.cur > b.cap {
		b.cur = b.cap
	}
	b.schedule(fn)
}

// Reset stops the timer, returning it to Idle with the interval reset to
// initial; Start must be called again to resume.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cur = b.initial
	b.running = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Stop cancels the timer without resetting the current interval, used when
// going offline (spec §4.3: "All timers are cancelled on going offline").
func (b *Backoff) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Running reports whether the backoff timer is currently armed.
func (b *Backoff) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
