package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/attempt"
	"github.com/stemsi/exstem-portal/internal/model"
)

var _ attempt.Backend = (*Client)(nil)

type examData struct {
	Exam model.Exam `json:"exam"`
}

type examsData struct {
	Exams []model.Exam `json:"exams"`
}

type questionsData struct {
	Questions []model.Question `json:"questions"`
}

type attemptData struct {
	Attempt model.Attempt `json:"attempt"`
}

type resultData struct {
	Result model.Result `json:"result"`
}

type resultsData struct {
	Results []model.Result `json:"results"`
}

func examPath(examID uuid.UUID, suffix string) string {
	return "/api/v1/student/exams/" + examID.String() + suffix
}

// Login exchanges credentials for a token. It needs no CredentialProvider.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	res, err := do[model.LoginResponse](ctx, c, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetExam fetches exam metadata.
func (c *Client) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	res, err := do[examData](ctx, c, http.MethodGet, examPath(examID, ""), nil)
	if err != nil {
		return nil, err
	}
	return &res.Exam, nil
}

// ListExams lists the exams a student can take.
func (c *Client) ListExams(ctx context.Context) ([]model.Exam, error) {
	res, err := do[examsData](ctx, c, http.MethodGet, "/api/v1/student/exams", nil)
	return res.Exams, err
}

// GetExamQuestions fetches the ordered paper, without correct answers.
func (c *Client) GetExamQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	res, err := do[questionsData](ctx, c, http.MethodGet, examPath(examID, "/questions"), nil)
	return res.Questions, err
}

// StartAttempt opens the caller's attempt on an exam.
func (c *Client) StartAttempt(ctx context.Context, examID uuid.UUID) error {
	_, err := do[attemptData](ctx, c, http.MethodPost, examPath(examID, "/start"), nil)
	return err
}

// SubmitAttempt hands in answers and returns the graded result.
func (c *Client) SubmitAttempt(ctx context.Context, examID uuid.UUID, answers model.AnswerMap) (*model.Result, error) {
	if answers == nil {
		answers = model.AnswerMap{}
	}
	res, err := do[resultData](ctx, c, http.MethodPost, examPath(examID, "/submit"), model.SubmitRequest{Answers: answers})
	if err != nil {
		return nil, err
	}
	return &res.Result, nil
}

// Results lists the caller's graded attempts.
func (c *Client) Results(ctx context.Context) ([]model.Result, error) {
	res, err := do[resultsData](ctx, c, http.MethodGet, "/api/v1/student/results", nil)
	return res.Results, err
}
