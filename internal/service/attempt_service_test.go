package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptService_Resume(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	exam := &model.Exam{ID: uuid.New(), DurationMinutes: 30}

	tests := []struct {
		name   string
		status model.AttemptStatus
		now    time.Time
		err    error
	}{
		{"running attempt is handed back", model.AttemptStatusInProgress, started.Add(5 * time.Minute), nil},
		{"inside the grace period", model.AttemptStatusInProgress, started.Add(30*time.Minute + 10*time.Second), nil},
		{"past deadline and grace", model.AttemptStatusInProgress, started.Add(31 * time.Minute), ErrAttemptExpired},
		{"completed attempt", model.AttemptStatusCompleted, started.Add(time.Minute), ErrAttemptCompleted},
		{"expired attempt", model.AttemptStatusExpired, started.Add(time.Minute), ErrAttemptCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &AttemptService{
				grace: 30 * time.Second,
				now:   func() time.Time { return tt.now },
				log:   zerolog.Nop(),
			}
			existing := &model.Attempt{
				ID:        uuid.New(),
				ExamID:    exam.ID,
				StudentID: 7,
				Status:    tt.status,
				StartedAt: started,
			}

			got, err := s.resume(existing, exam)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Same(t, existing, got)
		})
	}
}

func TestAttemptDeadline(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := &model.Attempt{StartedAt: started}
	exam := &model.Exam{DurationMinutes: 2}

	assert.Equal(t, started.Add(2*time.Minute+15*time.Second), attemptDeadline(a, exam, 15*time.Second))
	assert.Equal(t, started.Add(2*time.Minute), attemptDeadline(a, exam, 0))
}
