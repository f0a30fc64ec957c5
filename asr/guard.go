package asr

import (
	"context"
	"fmt"
)

// Guard serializes access to a shared Recognizer. Waiters are admitted in
// arrival order; there is no timeout other than the caller's context.
type Guard struct {
	rec Recognizer
	sem chan struct{}
}

// NewGuard wraps rec in a Guard.
func NewGuard(rec Recognizer) *Guard {
	return &Guard{
		rec: rec,
		sem: make(chan struct{}, 1),
	}
}

// Do runs fn with exclusive access to the recognizer. The guard is released
// on every exit path; a panic inside fn is returned as an error.
func (g *Guard) Do(ctx context.Context, fn func(Recognizer) error) (err error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sem }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("asr: recognizer panic: %v", r)
		}
	}()
	return fn(g.rec)
}

// Busy reports whether a caller currently holds the guard.
func (g *Guard) Busy() bool {
	return len(g.sem) == 1
}
