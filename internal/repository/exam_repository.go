package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-portal/internal/model"
)

// ErrExamInUse is returned when an exam with running attempts is changed.
var ErrExamInUse = errors.New("exam has attempts in progress")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `e.id, e.title, e.description, e.duration_minutes, e.total_marks,
	e.pass_percentage, e.start_time, e.end_time, e.author_id, u.name,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
	e.created_at, e.updated_at`

const examFrom = ` FROM exams e JOIN users u ON u.id = e.author_id`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.DurationMinutes, &e.TotalMarks,
		&e.PassPercentage, &e.StartTime, &e.EndTime, &e.AuthorID, &e.AuthorName,
		&e.QuestionCount, &e.CreatedAt, &e.UpdatedAt)
}

func collectExams(rows pgx.Rows) ([]model.Exam, error) {
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	row := r.pool.QueryRow(ctx, `SELECT `+examColumns+examFrom+` WHERE e.id = $1`, id)
	if err := scanExam(row, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListAll returns every exam, newest first. Students browse this list.
func (r *ExamRepository) ListAll(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+examColumns+examFrom+` ORDER BY e.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// ListByAuthorPaginated retrieves exams filtered by author with pagination.
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE author_id = $1`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s%s WHERE e.author_id = $1
		ORDER BY e.created_at DESC LIMIT $2 OFFSET $3`, examColumns, examFrom)
	rows, err := r.pool.Query(ctx, query, authorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	exams, err := collectExams(rows)
	return exams, total, err
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, duration_minutes, total_marks, pass_percentage,
		                    start_time, end_time, author_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.DurationMinutes, e.TotalMarks, e.PassPercentage,
		e.StartTime, e.EndTime, e.AuthorID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// lockIdleExam row-locks the exam for the rest of tx and fails with
// ErrExamInUse while any attempt on it is running. Attempt creation takes a
// share lock on the same row, so no attempt can start until tx ends.
func lockIdleExam(ctx context.Context, tx pgx.Tx, examID uuid.UUID) error {
	var active bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attempts a WHERE a.exam_id = e.id AND a.status = 'IN_PROGRESS')
		 FROM exams e WHERE e.id = $1
		 FOR UPDATE OF e`, examID,
	).Scan(&active)
	if err != nil {
		return err
	}
	if active {
		return ErrExamInUse
	}
	return nil
}

// Update replaces an exam's settings.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockIdleExam(ctx, tx, e.ID); err != nil {
		return err
	}

	if err := tx.QueryRow(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, duration_minutes = $3, total_marks = $4,
		     pass_percentage = $5, start_time = $6, end_time = $7, updated_at = NOW()
		 WHERE id = $8
		 RETURNING updated_at`,
		e.Title, e.Description, e.DurationMinutes, e.TotalMarks,
		e.PassPercentage, e.StartTime, e.EndTime, e.ID,
	).Scan(&e.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Delete removes an exam. Its questions and closed attempts go with it.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockIdleExam(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListWithQuestions returns the IDs of exams that have at least one question.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListWithQuestions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT exam_id FROM questions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
