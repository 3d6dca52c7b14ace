package pipeline

import (
	"context"
	"sync/atomic"
)

// Token is the cancellation handle of one run. Cancel sets the flag and
// cancels the context every provider call of the run is made under, which
// aborts the in-flight HTTP request.
type Token struct {
	parent    context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// NewToken derives a token from parent. Cancelling parent cancels the token's
// context but does not set the flag; Cancelled checks both.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{parent: parent, ctx: ctx, cancel: cancel}
}

func (t *Token) Context() context.Context { return t.ctx }

// Cancel aborts the run. Safe to call more than once.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether the run was aborted, either directly or through
// its parent context.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load() || t.parent.Err() != nil
}

// release frees the context once the run is over without marking it cancelled.
func (t *Token) release() {
	t.cancel()
}
