package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/response"
)

// Attempt errors.
var (
	ErrExamNotOpen      = errors.New("exam is not open")
	ErrAttemptCompleted = errors.New("exam already attempted")
	ErrNoActiveAttempt  = errors.New("no active attempt for this exam")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrSubmitInFlight   = errors.New("submission already in progress")
	ErrAttemptExpired   = errors.New("attempt time is over")
)

// submitLockTTL bounds how long a crashed submit can hold the lock.
const submitLockTTL = 30 * time.Second

// AttemptService runs the server side of an attempt: start, grade, persist.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	examService *ExamService
	monitor     *MonitorService
	rdb         *redis.Client
	grace       time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService. grace is how long after the
// deadline a submission is still accepted.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	examService *ExamService,
	monitor *MonitorService,
	rdb *redis.Client,
	grace time.Duration,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		examService: examService,
		monitor:     monitor,
		rdb:         rdb,
		grace:       grace,
		now:         time.Now,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start opens an attempt for the student. It is rejected when the exam window
// is closed, when the exam has no questions, or when the student already
// closed an attempt on this exam. Starting again while an attempt is still
// running returns that attempt, so a start whose response was lost can be
// retried.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.WindowOpen(s.now()) {
		return nil, ErrExamNotOpen
	}

	existing, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	switch {
	case err == nil:
		return s.resume(existing, exam)
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if _, err := s.examService.GetQuestions(ctx, examID); err != nil {
		return nil, err
	}

	a := &model.Attempt{ExamID: examID, StudentID: studentID}
	if err := s.attemptRepo.Create(ctx, a); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Lost a race with a concurrent start, or the exam was deleted.
		existing, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get attempt: %w", err)
		}
		return s.resume(existing, exam)
	}

	s.monitor.Publish(ctx, model.AttemptEvent{
		Type:      model.AttemptEventStarted,
		AttemptID: a.ID,
		ExamID:    examID,
		StudentID: studentID,
		At:        a.StartedAt,
	})

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")
	return a, nil
}

// resume hands back a running attempt while it can still be submitted.
func (s *AttemptService) resume(a *model.Attempt, exam *model.Exam) (*model.Attempt, error) {
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptCompleted
	}
	if s.now().After(attemptDeadline(a, exam, s.grace)) {
		return nil, ErrAttemptExpired
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("student_id", a.StudentID).
		Msg("Attempt resumed")
	return a, nil
}

// attemptDeadline is the last moment a submission for a is accepted.
func attemptDeadline(a *model.Attempt, exam *model.Exam, grace time.Duration) time.Time {
	return a.StartedAt.Add(time.Duration(exam.DurationSeconds())*time.Second + grace)
}

// Submit grades answers against the exam's key and closes the attempt. Only
// one submission per attempt can succeed; a concurrent one gets
// ErrSubmitInFlight, a later one ErrAlreadySubmitted.
func (s *AttemptService) Submit(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerMap) (*model.Result, error) {
	lockKey := config.CacheKey.AttemptSubmitLockKey(examID.String(), studentID)
	lock, err := acquireSubmitLock(ctx, s.rdb, lockKey, submitLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Str("key", lockKey).Msg("Submit lock release failed")
		}
	}()

	attempt, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAlreadySubmitted
	}

	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.After(attemptDeadline(attempt, exam, s.grace)) {
		return nil, ErrAttemptExpired
	}

	key, err := s.examService.GetAnswerKey(ctx, examID)
	if err != nil {
		return nil, err
	}

	grade := GradeAnswers(exam, key, answers)
	res := &model.Result{
		AttemptID:   attempt.ID,
		ExamID:      examID,
		ExamTitle:   exam.Title,
		StudentID:   studentID,
		Score:       grade.Score,
		TotalMarks:  exam.TotalMarks,
		Percentage:  grade.Percentage,
		Status:      grade.Status,
		SubmittedAt: now,
	}

	if err := s.attemptRepo.Complete(ctx, res, grade.Answers); err != nil {
		if errors.Is(err, repository.ErrAttemptNotInProgress) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("complete attempt: %w", err)
	}

	score, pct := res.Score, res.Percentage
	s.monitor.Publish(ctx, model.AttemptEvent{
		Type:       model.AttemptEventSubmitted,
		AttemptID:  attempt.ID,
		ExamID:     examID,
		StudentID:  studentID,
		Score:      &score,
		Percentage: &pct,
		At:         now,
	})

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Int("score", res.Score).
		Int("answered", len(grade.Answers)).
		Str("status", string(res.Status)).
		Msg("Attempt graded")
	return res, nil
}

// StudentResults returns the student's closed attempts.
func (s *AttemptService) StudentResults(ctx context.Context, studentID int) ([]model.Result, error) {
	return s.attemptRepo.ListResultsByStudent(ctx, studentID)
}

// ExamResults returns the closed attempts of an exam to its author.
func (s *AttemptService) ExamResults(ctx context.Context, examID uuid.UUID, authorID, page, perPage int) ([]model.Result, *response.Pagination, error) {
	if _, err := s.examService.AuthorExam(ctx, examID, authorID); err != nil {
		return nil, nil, err
	}
	page, perPage = normalizePage(page, perPage)

	results, total, err := s.attemptRepo.ListResultsByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	return results, buildPagination(page, perPage, total), nil
}

// ExpireOverdue closes attempts that ran past their deadline plus grace and
// announces each one. It returns how many were closed.
func (s *AttemptService) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.attemptRepo.ExpireOverdue(ctx, now, s.grace)
	if err != nil {
		return 0, fmt.Errorf("expire attempts: %w", err)
	}

	for _, a := range expired {
		zero, pct := 0, 0.0
		s.monitor.Publish(ctx, model.AttemptEvent{
			Type:       model.AttemptEventExpired,
			AttemptID:  a.ID,
			ExamID:     a.ExamID,
			StudentID:  a.StudentID,
			Score:      &zero,
			Percentage: &pct,
			At:         now,
		})
	}
	return len(expired), nil
}
