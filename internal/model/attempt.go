package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates server-side attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusExpired    AttemptStatus = "EXPIRED"
)

// ResultStatus is the pass/fail verdict of a graded attempt.
type ResultStatus string

const (
	ResultPass ResultStatus = "PASS"
	ResultFail ResultStatus = "FAIL"
)

// AnswerMap maps a question ID to the chosen option.
type AnswerMap map[uuid.UUID]Option

// Clone returns an independent copy of m.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Attempt is one student's pass through an exam.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	StudentID   int           `json:"student_id"`
	Status      AttemptStatus `json:"status"`
	Score       *int          `json:"score,omitempty"`
	Percentage  *float64      `json:"percentage,omitempty"`
	Result      *ResultStatus `json:"result,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
}

// GradedAnswer is one persisted answer of a graded attempt.
type GradedAnswer struct {
	QuestionID uuid.UUID `json:"question_id"`
	Selected   Option    `json:"selected_option"`
	Correct    bool      `json:"is_correct"`
}

// SubmitRequest is the payload of a submission.
type SubmitRequest struct {
	Answers AnswerMap `json:"answers" binding:"dive,option"`
}

// Result is the scoring response returned by a successful submission.
type Result struct {
	AttemptID   uuid.UUID    `json:"attempt_id"`
	ExamID      uuid.UUID    `json:"exam_id"`
	ExamTitle   string       `json:"exam_title"`
	StudentID   int          `json:"student_id"`
	StudentName string       `json:"student_name,omitempty"`
	Score       int          `json:"score"`
	TotalMarks  int          `json:"total_marks"`
	Percentage  float64      `json:"percentage"`
	Status      ResultStatus `json:"status"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// Passed reports whether the result is a pass.
func (r Result) Passed() bool {
	return r.Status == ResultPass
}

// AttemptEventType names an event on the live monitor channel.
type AttemptEventType string

const (
	AttemptEventStarted   AttemptEventType = "started"
	AttemptEventSubmitted AttemptEventType = "submitted"
	AttemptEventExpired   AttemptEventType = "expired"
)

// AttemptEvent is published to Redis whenever an attempt changes state.
type AttemptEvent struct {
	Type        AttemptEventType `json:"type"`
	AttemptID   uuid.UUID        `json:"attempt_id"`
	ExamID      uuid.UUID        `json:"exam_id"`
	StudentID   int              `json:"student_id"`
	StudentName string           `json:"student_name,omitempty"`
	Score       *int             `json:"score,omitempty"`
	Percentage  *float64         `json:"percentage,omitempty"`
	At          time.Time        `json:"at"`
}
