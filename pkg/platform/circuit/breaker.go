// Package circuit trips after consecutive failures to an external dependency
// and lets trial calls through once a cooldown has passed.
package circuit

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	mu       sync.Mutex
	state    State
	streak   int // consecutive failures while closed, consecutive successes while open
	openedAt time.Time
}

type Option func(*Breaker)

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many successful trial calls close an open breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         10 * time.Second,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may reach the dependency at now.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateClosed || now.Sub(b.openedAt) >= b.cooldown
}

// Failure records a failed call and reports whether it opened the breaker.
// A failed trial call restarts the cooldown.
func (b *Breaker) Failure(now time.Time) (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		b.streak = 0
		b.openedAt = now
		return false
	}
	b.streak++
	if b.streak < b.failureThreshold {
		return false
	}
	b.state, b.streak, b.openedAt = StateOpen, 0, now
	return true
}

// Success records a successful call and reports whether it closed the
// breaker.
func (b *Breaker) Success() (closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		b.streak = 0
		return false
	}
	b.streak++
	if b.streak < b.successThreshold {
		return false
	}
	b.state, b.streak = StateClosed, 0
	return true
}
