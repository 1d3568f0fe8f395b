package attempt

import (
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/model"
)

// Ledger holds the student's current selections, one per question.
type Ledger struct {
	mu      sync.RWMutex
	answers model.AnswerMap
	frozen  bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{answers: make(model.AnswerMap)}
}

// Set records option o for question q, overwriting any prior selection.
func (l *Ledger) Set(q uuid.UUID, o model.Option) error {
	if !o.Valid() {
		return ErrInvalidOption
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return ErrLedgerFrozen
	}
	l.answers[q] = o
	return nil
}

// Get returns the selection for q; ok is false when q is unanswered.
func (l *Ledger) Get(q uuid.UUID) (o model.Option, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok = l.answers[q]
	return o, ok
}

// AnsweredCount returns the number of distinct questions answered.
func (l *Ledger) AnsweredCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.answers)
}

// Snapshot returns an independent copy of the current selections.
func (l *Ledger) Snapshot() model.AnswerMap {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.answers.Clone()
}

// Freeze rejects further writes and returns the snapshot to submit.
func (l *Ledger) Freeze() model.AnswerMap {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
	return l.answers.Clone()
}

// Thaw re-enables writes after a recoverable submission failure.
func (l *Ledger) Thaw() {
	l.mu.Lock()
	l.frozen = false
	l.mu.Unlock()
}

// Frozen reports whether the ledger currently rejects writes.
func (l *Ledger) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}
