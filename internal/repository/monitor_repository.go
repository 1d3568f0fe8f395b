package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-portal/internal/model"
)

// MonitorRepository provides data access for the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListInProgress returns a "started" event for every attempt of the exam
// still in progress. The monitor sends these as its initial snapshot.
func (r *MonitorRepository) ListInProgress(ctx context.Context, examID uuid.UUID) ([]model.AttemptEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, u.name, a.started_at
		 FROM attempts a JOIN users u ON u.id = a.student_id
		 WHERE a.exam_id = $1 AND a.status = $2
		 ORDER BY a.started_at`,
		examID, model.AttemptStatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.AttemptEvent{}
	for rows.Next() {
		ev := model.AttemptEvent{Type: model.AttemptEventStarted, ExamID: examID}
		if err := rows.Scan(&ev.AttemptID, &ev.StudentID, &ev.StudentName, &ev.At); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
