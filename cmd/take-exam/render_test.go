package main

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/attempt"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{"", command{kind: cmdEmpty}, false},
		{"   ", command{kind: cmdEmpty}, false},
		{"submit", command{kind: cmdSubmit}, false},
		{"SUBMIT", command{kind: cmdSubmit}, false},
		{"list", command{kind: cmdList}, false},
		{"quit", command{kind: cmdQuit}, false},
		{"1 a", command{kind: cmdAnswer, index: 0, option: model.OptionA}, false},
		{"3  D", command{kind: cmdAnswer, index: 2, option: model.OptionD}, false},
		{"0 A", command{}, true},
		{"4 A", command{}, true},
		{"2 E", command{}, true},
		{"two B", command{}, true},
		{"1", command{}, true},
		{"1 A B", command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line, 3)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", formatClock(0))
	assert.Equal(t, "00:00", formatClock(-4))
	assert.Equal(t, "01:05", formatClock(65))
	assert.Equal(t, "90:00", formatClock(5400))
}

func TestRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.Observe(attempt.Status{State: attempt.StateInProgress, Remaining: 61, Answered: 1, Total: 4})
	assert.Contains(t, buf.String(), "[01:01 left] answered 1/4")

	r.Println("hello")
	assert.Contains(t, buf.String(), "answered 1/4 > \nhello\n")

	buf.Reset()
	r.Observe(attempt.Status{State: attempt.StateSubmitting})
	r.Observe(attempt.Status{State: attempt.StateSubmitting})
	assert.Equal(t, "Submitting...\n", buf.String())

	buf.Reset()
	r.Result(model.Result{ExamTitle: "Biology", Score: 7, TotalMarks: 10, Percentage: 70, Status: model.ResultPass})
	assert.Contains(t, buf.String(), "Score:      7 / 10")
	assert.Contains(t, buf.String(), "70.00%")
	assert.Contains(t, buf.String(), "PASS")
}

func TestRendererReview(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	q1, q2 := uuid.New(), uuid.New()
	questions := []model.Question{{ID: q1, QuestionText: "First"}, {ID: q2, QuestionText: "Second"}}
	answers := map[uuid.UUID]model.Option{q2: model.OptionB}

	r.Review(questions, func(id uuid.UUID) (model.Option, bool) {
		o, ok := answers[id]
		return o, ok
	})

	assert.Contains(t, buf.String(), "  1. [-] First")
	assert.Contains(t, buf.String(), "  2. [B] Second")
}
