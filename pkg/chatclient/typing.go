package chatclient

import (
	"sync"
	"time"
)

// typingIdle is how long after the last keystroke the composing signal
// expires.
const typingIdle = 2 * time.Second

// TypingDebouncer is the per-room idle -> typing -> idle machine: start
// fires on the first keystroke after a quiet period, not on every one,
// and stop fires after the idle window or an explicit end. It owns one
// timer; Cancel releases it on room switch or unmount so no cross-room
// typing state can leak.
type TypingDebouncer struct {
	mu     sync.Mutex
	idle   time.Duration
	timer  *time.Timer
	active bool
	start  func()
	stop   func()
}

func NewTypingDebouncer(idle time.Duration, start, stop func()) *TypingDebouncer {
	return &TypingDebouncer{
		idle:  idle,
		start: start,
		stop:  stop,
	}
}

// Keystroke registers input, emitting start only on the idle->typing
// transition and rearming the expiry timer.
func (d *TypingDebouncer) Keystroke() {
	d.mu.Lock()
	fireStart := !d.active
	d.active = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, d.expire)
	d.mu.Unlock()

	if fireStart {
		d.start()
	}
}

func (d *TypingDebouncer) expire() {
	d.mu.Lock()
	fireStop := d.active
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	if fireStop {
		d.stop()
	}
}

// Stop ends the typing state explicitly (message sent, compose box
// emptied).
func (d *TypingDebouncer) Stop() {
	d.mu.Lock()
	fireStop := d.active
	d.active = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if fireStop {
		d.stop()
	}
}

// Cancel releases the timer on room switch or unmount, emitting a final
// stop if composing was in progress so the counterpart's indicator
// clears.
func (d *TypingDebouncer) Cancel() {
	d.Stop()
}

func (d *TypingDebouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}
