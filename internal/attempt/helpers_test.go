package attempt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/model"
)

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

// tickerHub hands out manual tickers and remembers them in creation order.
type tickerHub struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (h *tickerHub) factory(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	h.mu.Lock()
	h.tickers = append(h.tickers, t)
	h.mu.Unlock()
	return t
}

func (h *tickerHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tickers)
}

func (h *tickerHub) latest() *manualTicker {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tickers) == 0 {
		return nil
	}
	return h.tickers[len(h.tickers)-1]
}

// tick delivers n ticks to the most recent ticker, failing if one is not
// consumed.
func (h *tickerHub) tick(t *testing.T, n int) {
	t.Helper()
	tk := h.latest()
	if tk == nil {
		t.Fatal("no ticker has been created")
	}
	for i := 0; i < n; i++ {
		select {
		case tk.ch <- time.Now():
		case <-time.After(time.Second):
			t.Fatalf("tick %d of %d was not consumed", i+1, n)
		}
	}
}

type fakeBackend struct {
	mu sync.Mutex

	exam         *model.Exam
	questions    []model.Question
	examErr      error
	questionsErr error
	startErrs    []error
	submitErrs   []error

	// When set, SubmitAttempt signals entered and waits for release.
	entered chan struct{}
	release chan struct{}

	startCalls int
	submits    []model.AnswerMap
}

func newFakeBackend(minutes int, questions int) *fakeBackend {
	examID := uuid.New()
	b := &fakeBackend{
		exam: &model.Exam{
			ID:              examID,
			Title:           "Operating Systems",
			DurationMinutes: minutes,
			TotalMarks:      questions * 2,
			PassPercentage:  50,
		},
	}
	for i := 0; i < questions; i++ {
		b.questions = append(b.questions, model.Question{
			ID:           uuid.New(),
			ExamID:       examID,
			QuestionText: "question",
			OptionA:      "a",
			OptionB:      "b",
			OptionC:      "c",
			OptionD:      "d",
			Marks:        2,
			OrderNum:     i + 1,
		})
	}
	return b
}

func (b *fakeBackend) GetExam(ctx context.Context, _ uuid.UUID) (*model.Exam, error) {
	if b.examErr != nil {
		return nil, b.examErr
	}
	e := *b.exam
	return &e, nil
}

func (b *fakeBackend) GetExamQuestions(ctx context.Context, _ uuid.UUID) ([]model.Question, error) {
	if b.questionsErr != nil {
		return nil, b.questionsErr
	}
	return b.questions, nil
}

func (b *fakeBackend) StartAttempt(ctx context.Context, _ uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls++
	if len(b.startErrs) > 0 {
		err := b.startErrs[0]
		b.startErrs = b.startErrs[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) SubmitAttempt(ctx context.Context, examID uuid.UUID, answers model.AnswerMap) (*model.Result, error) {
	b.mu.Lock()
	b.submits = append(b.submits, answers.Clone())
	var err error
	if len(b.submitErrs) > 0 {
		err = b.submitErrs[0]
		b.submitErrs = b.submitErrs[1:]
	}
	entered, release := b.entered, b.release
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.Result{
		AttemptID:   uuid.New(),
		ExamID:      examID,
		ExamTitle:   b.exam.Title,
		Score:       len(answers) * 2,
		TotalMarks:  b.exam.TotalMarks,
		Percentage:  100,
		Status:      model.ResultPass,
		SubmittedAt: time.Now(),
	}, nil
}

func (b *fakeBackend) submitted() []model.AnswerMap {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.AnswerMap, len(b.submits))
	copy(out, b.submits)
	return out
}

var errBackend = errors.New("backend unavailable")
