// Package cooldown implements the resend countdown shared by the code entry
// forms. Remaining time is always derived from the last send time, so the
// ticker only drives notifications and never the state itself.
package cooldown

import (
	"context"
	"math"
	"sync"
	"time"
)

// DefaultPeriod is the resend cooldown used by the registration and
// two-factor forms
const DefaultPeriod = 60 * time.Second

// State is a snapshot of the countdown. CanResend is true exactly when
// SecondsRemaining is zero.
type State struct {
	SecondsRemaining int  `json:"seconds_remaining" yaml:"seconds_remaining"`
	CanResend        bool `json:"can_resend" yaml:"can_resend"`
}

// ticker abstracts time.Ticker for tests
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Cooldown tracks the time since the last send
type Cooldown struct {
	mu        sync.Mutex
	period    time.Duration
	sentAt    time.Time
	now       func() time.Time
	newTicker func(time.Duration) ticker

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cooldown that has not been started; it allows a resend
// immediately.
func New(period time.Duration) *Cooldown {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Cooldown{
		period: period,
		now:    time.Now,
		newTicker: func(d time.Duration) ticker {
			return realTicker{t: time.NewTicker(d)}
		},
	}
}

// Period returns the configured cooldown length
func (c *Cooldown) Period() time.Duration {
	return c.period
}

// Restart marks a send as happening now
func (c *Cooldown) Restart() {
	c.RestartAt(c.now())
}

// RestartAt marks a send as having happened at sentAt
func (c *Cooldown) RestartAt(sentAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentAt = sentAt
}

// Reset clears the last send so a resend is allowed immediately
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentAt = time.Time{}
}

// State returns the current countdown
func (c *Cooldown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// CanResend reports whether the countdown reached zero
func (c *Cooldown) CanResend() bool {
	return c.State().CanResend
}

func (c *Cooldown) stateLocked() State {
	if c.sentAt.IsZero() {
		return State{CanResend: true}
	}
	left := c.period - c.now().Sub(c.sentAt)
	if left <= 0 {
		return State{CanResend: true}
	}
	secs := int(math.Ceil(left.Seconds()))
	return State{SecondsRemaining: secs, CanResend: secs == 0}
}

// Watch calls fn once per second with the current state until the countdown
// reaches zero (fn sees the final zero state), ctx is done, or Stop is
// called. A new Watch replaces the previous one.
func (c *Cooldown) Watch(ctx context.Context, fn func(State)) {
	c.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t := c.newTicker(time.Second)

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				// Re-check after the tick so a concurrent Stop wins.
				if ctx.Err() != nil {
					return
				}
				s := c.State()
				fn(s)
				if s.CanResend {
					return
				}
			}
		}
	}()
}

// Stop cancels the running watcher and waits for it to exit; no callback runs
// after Stop returns. Do not call Stop from inside the watch callback.
func (c *Cooldown) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
