package attempt

import (
	"context"
	"sync/atomic"

	"github.com/stemsi/exstem-portal/internal/model"
)

// SubmitFunc performs the submit network call.
type SubmitFunc func(ctx context.Context, answers model.AnswerMap) (*model.Result, error)

const (
	latchOpen int32 = iota
	latchHeld
	latchDispatched
)

// Coordinator guards the submit effect with a one-way latch: the first
// Acquire wins, every later one is refused until an explicit Reset. Each
// acquisition allows exactly one Submit.
type Coordinator struct {
	latch  atomic.Int32
	calls  atomic.Int64
	submit SubmitFunc
}

// NewCoordinator wraps submit behind the latch.
func NewCoordinator(submit SubmitFunc) *Coordinator {
	return &Coordinator{submit: submit}
}

// Acquire takes the latch. It returns false if it is already held.
func (c *Coordinator) Acquire() bool {
	return c.latch.CompareAndSwap(latchOpen, latchHeld)
}

// Held reports whether the latch is taken.
func (c *Coordinator) Held() bool {
	return c.latch.Load() != latchOpen
}

// Submit issues the network call with answers. The caller must hold the
// latch, and may call Submit once per acquisition.
func (c *Coordinator) Submit(ctx context.Context, answers model.AnswerMap) (*model.Result, error) {
	if !c.latch.CompareAndSwap(latchHeld, latchDispatched) {
		return nil, ErrLatchNotHeld
	}
	c.calls.Add(1)
	return c.submit(ctx, answers)
}

// Reset reopens the latch. Only the manual-retry path may call it.
func (c *Coordinator) Reset() {
	c.latch.Store(latchOpen)
}

// Calls returns how many submit calls have been issued.
func (c *Coordinator) Calls() int {
	return int(c.calls.Load())
}
