package service

import (
	"sort"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/model"
)

// KeyEntry is the answer key of one question.
type KeyEntry struct {
	Correct model.Option
	Marks   int
}

// AnswerKey maps question IDs to their key.
type AnswerKey map[uuid.UUID]KeyEntry

// Grade is the outcome of grading one submission.
type Grade struct {
	Score      int
	Percentage float64
	Status     model.ResultStatus
	Answers    []model.GradedAnswer
}

// GradeAnswers scores answers against key. Score is the sum of the marks of
// correctly answered questions. Selections are normalised with
// model.ParseOption, so " b" counts as B. Percentage is relative to the exam's
// total marks and is 0 when that total is 0. Answers to questions outside the
// key, and labels that are not A to D, are dropped.
func GradeAnswers(exam *model.Exam, key AnswerKey, answers model.AnswerMap) Grade {
	g := Grade{Answers: make([]model.GradedAnswer, 0, len(answers))}

	for qID, selected := range answers {
		entry, ok := key[qID]
		if !ok {
			continue
		}
		option, ok := model.ParseOption(string(selected))
		if !ok {
			continue
		}
		correct := option == entry.Correct
		if correct {
			g.Score += entry.Marks
		}
		g.Answers = append(g.Answers, model.GradedAnswer{
			QuestionID: qID,
			Selected:   option,
			Correct:    correct,
		})
	}
	sort.Slice(g.Answers, func(i, j int) bool {
		return g.Answers[i].QuestionID.String() < g.Answers[j].QuestionID.String()
	})

	if exam.TotalMarks > 0 {
		g.Percentage = float64(g.Score) / float64(exam.TotalMarks) * 100
	}

	g.Status = model.ResultFail
	if g.Percentage >= exam.PassPercentage {
		g.Status = model.ResultPass
	}
	return g
}
