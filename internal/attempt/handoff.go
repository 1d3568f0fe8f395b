package attempt

import (
	"sync"

	"github.com/stemsi/exstem-portal/internal/model"
)

// ResultHandoff receives the scoring response of a completed attempt.
type ResultHandoff interface {
	Deliver(result model.Result)
}

// HandoffFunc adapts a function to ResultHandoff.
type HandoffFunc func(result model.Result)

// Deliver calls f.
func (f HandoffFunc) Deliver(result model.Result) { f(result) }

// ResultSlot holds the first delivered result for a display surface to read.
type ResultSlot struct {
	once   sync.Once
	ready  chan struct{}
	result model.Result
}

// NewResultSlot returns an empty slot.
func NewResultSlot() *ResultSlot {
	return &ResultSlot{ready: make(chan struct{})}
}

// Deliver stores result. Later deliveries are ignored.
func (s *ResultSlot) Deliver(result model.Result) {
	s.once.Do(func() {
		s.result = result
		close(s.ready)
	})
}

// Ready is closed once a result has been delivered.
func (s *ResultSlot) Ready() <-chan struct{} { return s.ready }

// Result returns the delivered result, if any.
func (s *ResultSlot) Result() (model.Result, bool) {
	select {
	case <-s.ready:
		return s.result, true
	default:
		return model.Result{}, false
	}
}
