package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-portal/internal/model"
)

// ErrAttemptNotInProgress is returned when a graded result is written to an
// attempt that has already been closed.
var ErrAttemptNotInProgress = errors.New("attempt is not in progress")

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByExamAndStudent retrieves the attempt of a student on an exam.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, status, score, percentage, result, started_at, submitted_at
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.Score, &a.Percentage, &a.Result, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new in-progress attempt. It returns pgx.ErrNoRows when the
// student already has an attempt on the exam, or the exam is gone. The share
// lock on the exam row holds off edits that are checking for running attempts.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	a.Status = model.AttemptStatusInProgress
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id, status)
		 SELECT e.id, $2::int, $3::varchar FROM exams e WHERE e.id = $1 FOR SHARE
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.StudentID, a.Status,
	).Scan(&a.ID, &a.StartedAt)
}

// Complete closes an in-progress attempt with its grade and stores the graded
// answers, all in one transaction.
func (r *AttemptRepository) Complete(ctx context.Context, res *model.Result, answers []model.GradedAnswer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, percentage = $3, result = $4, submitted_at = $5
		 WHERE id = $6 AND status = $7`,
		model.AttemptStatusCompleted, res.Score, res.Percentage, res.Status, res.SubmittedAt,
		res.AttemptID, model.AttemptStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotInProgress
	}

	if len(answers) > 0 {
		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"attempt_answers"},
			[]string{"attempt_id", "question_id", "selected_option", "is_correct"},
			pgx.CopyFromSlice(len(answers), func(i int) ([]interface{}, error) {
				a := answers[i]
				return []interface{}{res.AttemptID, a.QuestionID, string(a.Selected), a.Correct}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy answers: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const resultColumns = `a.id, a.exam_id, e.title, a.student_id, u.name,
	COALESCE(a.score, 0), e.total_marks, COALESCE(a.percentage, 0),
	COALESCE(a.result, 'FAIL'), COALESCE(a.submitted_at, a.started_at)`

func collectResults(rows pgx.Rows) ([]model.Result, error) {
	defer rows.Close()

	results := []model.Result{}
	for rows.Next() {
		var res model.Result
		if err := rows.Scan(&res.AttemptID, &res.ExamID, &res.ExamTitle, &res.StudentID, &res.StudentName,
			&res.Score, &res.TotalMarks, &res.Percentage, &res.Status, &res.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListResultsByStudent returns the closed attempts of a student, newest first.
func (r *AttemptRepository) ListResultsByStudent(ctx context.Context, studentID int) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+`
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 JOIN users u ON u.id = a.student_id
		 WHERE a.student_id = $1 AND a.status <> $2
		 ORDER BY a.submitted_at DESC NULLS LAST`,
		studentID, model.AttemptStatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	return collectResults(rows)
}

// ListResultsByExam returns the closed attempts of an exam with pagination.
func (r *AttemptRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Result, int, error) {
	offset := (page - 1) * perPage

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1 AND status <> $2`,
		examID, model.AttemptStatusInProgress,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+`
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 JOIN users u ON u.id = a.student_id
		 WHERE a.exam_id = $1 AND a.status <> $2
		 ORDER BY a.percentage DESC NULLS LAST, u.name
		 LIMIT $3 OFFSET $4`,
		examID, model.AttemptStatusInProgress, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	results, err := collectResults(rows)
	return results, total, err
}

// ExpireOverdue closes every in-progress attempt whose duration plus grace has
// passed as of now, scoring it 0 / FAIL, and returns the closed attempts.
func (r *AttemptRepository) ExpireOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE attempts a
		 SET status = $1, score = 0, percentage = 0, result = $2, submitted_at = $3
		 FROM exams e
		 WHERE e.id = a.exam_id
		   AND a.status = $4
		   AND a.started_at + make_interval(mins => e.duration_minutes) + make_interval(secs => $5) < $3
		 RETURNING a.id, a.exam_id, a.student_id, a.status, a.score, a.percentage, a.result,
		           a.started_at, a.submitted_at`,
		model.AttemptStatusExpired, model.ResultFail, now, model.AttemptStatusInProgress, grace.Seconds(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.Score, &a.Percentage, &a.Result,
			&a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, err
		}
		expired = append(expired, a)
	}
	return expired, rows.Err()
}
