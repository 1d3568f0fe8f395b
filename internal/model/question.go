package model

import (
	"strings"

	"github.com/google/uuid"
)

// Option is a multiple-choice label.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the valid labels in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// ParseOption normalises s ("b", " B ") into an Option.
func ParseOption(s string) (Option, bool) {
	o := Option(strings.ToUpper(strings.TrimSpace(s)))
	return o, o.Valid()
}

// Valid reports whether o is one of A, B, C or D.
func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Question is the student-facing view of a question. It deliberately has no
// correct-answer field.
type Question struct {
	ID           uuid.UUID `json:"id"`
	ExamID       uuid.UUID `json:"exam_id"`
	QuestionText string    `json:"question_text"`
	OptionA      string    `json:"option_a"`
	OptionB      string    `json:"option_b"`
	OptionC      string    `json:"option_c"`
	OptionD      string    `json:"option_d"`
	Marks        int       `json:"marks"`
	OrderNum     int       `json:"order_num"`
}

// OptionText returns the text shown for label o.
func (q *Question) OptionText(o Option) string {
	switch o {
	case OptionA:
		return q.OptionA
	case OptionB:
		return q.OptionB
	case OptionC:
		return q.OptionC
	case OptionD:
		return q.OptionD
	}
	return ""
}

// QuestionWithKey carries the correct option. Never sent to students.
type QuestionWithKey struct {
	Question
	CorrectOption Option `json:"correct_option"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	QuestionText  string `json:"question_text" binding:"required,min=1,max=2000"`
	OptionA       string `json:"option_a" binding:"required,max=1000"`
	OptionB       string `json:"option_b" binding:"required,max=1000"`
	OptionC       string `json:"option_c" binding:"required,max=1000"`
	OptionD       string `json:"option_d" binding:"required,max=1000"`
	CorrectOption string `json:"correct_option" binding:"required,option"`
	Marks         int    `json:"marks" binding:"required,min=1,max=100"`
	OrderNum      int    `json:"order_num" binding:"min=0"`
}

// UpdateQuestionRequest replaces a question. An order_num of 0 keeps the
// current position.
type UpdateQuestionRequest struct {
	QuestionText  string `json:"question_text" binding:"required,min=1,max=2000"`
	OptionA       string `json:"option_a" binding:"required,max=1000"`
	OptionB       string `json:"option_b" binding:"required,max=1000"`
	OptionC       string `json:"option_c" binding:"required,max=1000"`
	OptionD       string `json:"option_d" binding:"required,max=1000"`
	CorrectOption string `json:"correct_option" binding:"required,option"`
	Marks         int    `json:"marks" binding:"required,min=1,max=100"`
	OrderNum      int    `json:"order_num" binding:"min=0"`
}
