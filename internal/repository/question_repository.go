package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-portal/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam with their answer key,
// ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.QuestionWithKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, option_a, option_b, option_c, option_d,
		        correct_option, marks, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.QuestionWithKey{}
	for rows.Next() {
		var q model.QuestionWithKey
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectOption, &q.Marks, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question. An order_num of 0 appends it after the
// exam's last question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.QuestionWithKey) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_text, option_a, option_b, option_c, option_d,
		                        correct_option, marks, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		         CASE WHEN $9 > 0 THEN $9
		              ELSE (SELECT COALESCE(MAX(order_num), 0) + 1 FROM questions WHERE exam_id = $1) END)
		 RETURNING id, order_num`,
		q.ExamID, q.QuestionText, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectOption, q.Marks, q.OrderNum,
	).Scan(&q.ID, &q.OrderNum)
}

// GetByID retrieves a question with its answer key.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QuestionWithKey, error) {
	q := &model.QuestionWithKey{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, question_text, option_a, option_b, option_c, option_d,
		        correct_option, marks, order_num
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectOption, &q.Marks, &q.OrderNum)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Update replaces a question. An order_num of 0 keeps its position. It fails
// with ErrExamInUse while the exam has running attempts.
func (r *QuestionRepository) Update(ctx context.Context, q *model.QuestionWithKey) error {
	return r.inIdleExam(ctx, q.ExamID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`UPDATE questions
			 SET question_text = $1, option_a = $2, option_b = $3, option_c = $4, option_d = $5,
			     correct_option = $6, marks = $7,
			     order_num = CASE WHEN $8 > 0 THEN $8 ELSE order_num END
			 WHERE id = $9 AND exam_id = $10
			 RETURNING order_num`,
			q.QuestionText, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
			q.CorrectOption, q.Marks, q.OrderNum, q.ID, q.ExamID,
		).Scan(&q.OrderNum)
	})
}

// Delete removes a question from its exam. It fails with ErrExamInUse while
// the exam has running attempts.
func (r *QuestionRepository) Delete(ctx context.Context, examID, id uuid.UUID) error {
	return r.inIdleExam(ctx, examID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = $1 AND exam_id = $2`, id, examID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

func (r *QuestionRepository) inIdleExam(ctx context.Context, examID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockIdleExam(ctx, tx, examID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
