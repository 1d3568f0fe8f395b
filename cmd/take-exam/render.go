package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/attempt"
	"github.com/stemsi/exstem-portal/internal/model"
)

type commandKind int

const (
	cmdEmpty commandKind = iota
	cmdAnswer
	cmdSubmit
	cmdList
	cmdQuit
)

type command struct {
	kind   commandKind
	index  int
	option model.Option
}

// parseCommand reads "<n> <A-D>", "submit", "list" or "quit". n is 1-based.
func parseCommand(line string, total int) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{kind: cmdEmpty}, nil
	}

	switch strings.ToLower(fields[0]) {
	case "submit":
		return command{kind: cmdSubmit}, nil
	case "list":
		return command{kind: cmdList}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	}

	if len(fields) != 2 {
		return command{}, fmt.Errorf(`expected "<number> <A-D>", got %q`, line)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 || n > total {
		return command{}, fmt.Errorf("question number must be between 1 and %d", total)
	}
	opt, ok := model.ParseOption(fields[1])
	if !ok {
		return command{}, fmt.Errorf("option must be one of A, B, C, D")
	}
	return command{kind: cmdAnswer, index: n - 1, option: opt}, nil
}

// renderer prints the attempt to a terminal. The countdown is redrawn in
// place; everything else goes on its own line.
type renderer struct {
	mu       sync.Mutex
	w        io.Writer
	inLine   bool
	lastSeen attempt.State
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, lastSeen: attempt.StateNotStarted}
}

// Observe is the machine's status observer.
func (r *renderer) Observe(st attempt.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := st.State != r.lastSeen
	r.lastSeen = st.State

	switch st.State {
	case attempt.StateInProgress:
		fmt.Fprintf(r.w, "\r\033[K%s", countdownLine(st))
		r.inLine = true
	case attempt.StateSubmitting:
		if changed {
			r.printlnLocked("Submitting...")
		}
	case attempt.StateFailed:
		if changed && st.Reason == attempt.ReasonSubmitError {
			r.printlnLocked("The attempt could not be submitted.")
		}
	}
}

func countdownLine(st attempt.Status) string {
	return fmt.Sprintf("[%s left] answered %d/%d > ", formatClock(st.Remaining), st.Answered, st.Total)
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (r *renderer) Println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printlnLocked(s)
}

func (r *renderer) printlnLocked(s string) {
	if r.inLine {
		fmt.Fprintln(r.w)
		r.inLine = false
	}
	fmt.Fprintln(r.w, s)
}

// Paper prints the exam header and its questions.
func (r *renderer) Paper(exam *model.Exam, questions []model.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printlnLocked(fmt.Sprintf("%s (%d minutes, %d marks, pass at %.0f%%)",
		exam.Title, exam.DurationMinutes, exam.TotalMarks, exam.PassPercentage))
	if exam.Description != "" {
		r.printlnLocked(exam.Description)
	}
	for i, q := range questions {
		r.printlnLocked("")
		r.printlnLocked(fmt.Sprintf("%d. %s (%d marks)", i+1, q.QuestionText, q.Marks))
		for _, o := range model.Options {
			r.printlnLocked(fmt.Sprintf("   %s) %s", o, q.OptionText(o)))
		}
	}
	r.printlnLocked("")
}

// Review lists each question with the current selection.
func (r *renderer) Review(questions []model.Question, answer func(uuid.UUID) (model.Option, bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, q := range questions {
		sel := "-"
		if o, ok := answer(q.ID); ok {
			sel = string(o)
		}
		r.printlnLocked(fmt.Sprintf("%3d. [%s] %s", i+1, sel, q.QuestionText))
	}
}

// Result prints the graded attempt.
func (r *renderer) Result(res model.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printlnLocked("")
	r.printlnLocked(fmt.Sprintf("Result for %s", res.ExamTitle))
	r.printlnLocked(fmt.Sprintf("  Score:      %d / %d", res.Score, res.TotalMarks))
	r.printlnLocked(fmt.Sprintf("  Percentage: %.2f%%", res.Percentage))
	r.printlnLocked(fmt.Sprintf("  Status:     %s", res.Status))
}
