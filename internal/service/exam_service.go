package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/response"
)

// Domain Errors
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrNotExamAuthor    = errors.New("not the author of this exam")
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrExamInUse        = errors.New("exam has attempts in progress")
)

// ExamService handles exam business logic and Redis caching.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// ListAll returns every exam for the student catalogue.
func (s *ExamService) ListAll(ctx context.Context) ([]model.Exam, error) {
	return s.examRepo.ListAll(ctx)
}

// ListByAuthor retrieves a faculty member's exams.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)

	exams, total, err := s.examRepo.ListByAuthorPaginated(ctx, authorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}

	return exams, buildPagination(page, perPage, total), nil
}

// Create inserts a new exam owned by authorID.
func (s *ExamService) Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		TotalMarks:      req.TotalMarks,
		PassPercentage:  req.PassPercentage,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		AuthorID:        authorID,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Int("author_id", authorID).Msg("Exam created")
	return exam, nil
}

// Update replaces the settings of one of authorID's exams. Exams with running
// attempts cannot be changed.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, authorID int, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.AuthorExam(ctx, examID, authorID)
	if err != nil {
		return nil, err
	}

	exam.Title = req.Title
	exam.Description = req.Description
	exam.DurationMinutes = req.DurationMinutes
	exam.TotalMarks = req.TotalMarks
	exam.PassPercentage = req.PassPercentage
	exam.StartTime = req.StartTime
	exam.EndTime = req.EndTime
	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, mapExamWriteErr(err, ErrExamNotFound)
	}

	s.log.Info().Str("exam_id", examID.String()).Int("author_id", authorID).Msg("Exam updated")
	return exam, nil
}

// Delete removes one of authorID's exams along with its cached paper.
func (s *ExamService) Delete(ctx context.Context, examID uuid.UUID, authorID int) error {
	if _, err := s.AuthorExam(ctx, examID, authorID); err != nil {
		return err
	}
	if err := s.examRepo.Delete(ctx, examID); err != nil {
		return mapExamWriteErr(err, ErrExamNotFound)
	}
	s.dropExamCache(ctx, examID)

	s.log.Info().Str("exam_id", examID.String()).Int("author_id", authorID).Msg("Exam deleted")
	return nil
}

// AuthorExam loads an exam and checks that authorID wrote it.
func (s *ExamService) AuthorExam(ctx context.Context, examID uuid.UUID, authorID int) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	return exam, nil
}

// AddQuestion appends a question to an exam and refreshes the exam's cache.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, authorID int, req *model.AddQuestionRequest) (*model.QuestionWithKey, error) {
	exam, err := s.AuthorExam(ctx, examID, authorID)
	if err != nil {
		return nil, err
	}

	correct, _ := model.ParseOption(req.CorrectOption)
	q := &model.QuestionWithKey{
		Question: model.Question{
			ExamID:       examID,
			QuestionText: req.QuestionText,
			OptionA:      req.OptionA,
			OptionB:      req.OptionB,
			OptionC:      req.OptionC,
			OptionD:      req.OptionD,
			Marks:        req.Marks,
			OrderNum:     req.OrderNum,
		},
		CorrectOption: correct,
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	s.refreshExamCache(ctx, exam.ID)
	return q, nil
}

// authorQuestion loads a question and checks that authorID wrote its exam.
func (s *ExamService) authorQuestion(ctx context.Context, questionID uuid.UUID, authorID int) (*model.QuestionWithKey, error) {
	q, err := s.questionRepo.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	if _, err := s.AuthorExam(ctx, q.ExamID, authorID); err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuestion replaces a question and refreshes the exam's cache.
func (s *ExamService) UpdateQuestion(ctx context.Context, questionID uuid.UUID, authorID int, req *model.UpdateQuestionRequest) (*model.QuestionWithKey, error) {
	q, err := s.authorQuestion(ctx, questionID, authorID)
	if err != nil {
		return nil, err
	}

	correct, _ := model.ParseOption(req.CorrectOption)
	q.QuestionText = req.QuestionText
	q.OptionA = req.OptionA
	q.OptionB = req.OptionB
	q.OptionC = req.OptionC
	q.OptionD = req.OptionD
	q.CorrectOption = correct
	q.Marks = req.Marks
	q.OrderNum = req.OrderNum
	if err := s.questionRepo.Update(ctx, q); err != nil {
		return nil, mapExamWriteErr(err, ErrQuestionNotFound)
	}

	s.refreshExamCache(ctx, q.ExamID)
	return q, nil
}

// DeleteQuestion removes a question and refreshes the exam's cache.
func (s *ExamService) DeleteQuestion(ctx context.Context, questionID uuid.UUID, authorID int) error {
	q, err := s.authorQuestion(ctx, questionID, authorID)
	if err != nil {
		return err
	}
	if err := s.questionRepo.Delete(ctx, q.ExamID, q.ID); err != nil {
		return mapExamWriteErr(err, ErrQuestionNotFound)
	}

	s.refreshExamCache(ctx, q.ExamID)
	return nil
}

// refreshExamCache rewarms an exam after its paper changed. An exam left
// without questions loses its cache entirely.
func (s *ExamService) refreshExamCache(ctx context.Context, examID uuid.UUID) {
	err := s.WarmExamCache(ctx, examID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoQuestions):
		s.dropExamCache(ctx, examID)
	default:
		// Drop what is there so the next read rewarms from PostgreSQL.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache refresh failed")
		s.dropExamCache(ctx, examID)
	}
}

func (s *ExamService) dropExamCache(ctx context.Context, examID uuid.UUID) {
	id := examID.String()
	if err := s.rdb.Del(ctx,
		config.CacheKey.ExamPayloadKey(id),
		config.CacheKey.ExamAnswerKey(id),
		config.CacheKey.ExamMarksKey(id),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id).Msg("Cache drop failed")
	}
}

// mapExamWriteErr turns repository errors from an exam or question write into
// service errors. notFound is returned for a missing row.
func mapExamWriteErr(err, notFound error) error {
	switch {
	case errors.Is(err, repository.ErrExamInUse):
		return ErrExamInUse
	case errors.Is(err, pgx.ErrNoRows):
		return notFound
	default:
		return fmt.Errorf("write exam: %w", err)
	}
}

// ListQuestionsWithKey returns an exam's questions with answers, for its author.
func (s *ExamService) ListQuestionsWithKey(ctx context.Context, examID uuid.UUID, authorID int) ([]model.QuestionWithKey, error) {
	if _, err := s.AuthorExam(ctx, examID, authorID); err != nil {
		return nil, err
	}
	return s.questionRepo.ListByExam(ctx, examID)
}

// WarmExamCache loads an exam's payload, answer key and marks from PostgreSQL
// into Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, examID uuid.UUID) error {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		if _, err := s.GetByID(ctx, examID); err != nil {
			return err
		}
		return ErrNoQuestions
	}

	// Build student-facing payload (without correct answers).
	payload := model.ExamPayload{
		ExamID:    examID,
		Questions: make([]model.Question, len(questions)),
	}
	answerKey := make(map[string]interface{}, len(questions))
	marks := make(map[string]interface{}, len(questions))
	for i, q := range questions {
		payload.Questions[i] = q.Question
		answerKey[q.ID.String()] = string(q.CorrectOption)
		marks[q.ID.String()] = q.Marks
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	id := examID.String()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(id), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(id), config.CacheKey.ExamMarksKey(id))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(id), answerKey)
	pipe.HSet(ctx, config.CacheKey.ExamMarksKey(id), marks)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", id).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads every exam with questions into Redis on startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.examRepo.ListWithQuestions(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No exams to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if err := s.WarmExamCache(ctx, id); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", id.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

// GetQuestions returns the student paper, warming the cache on a miss.
func (s *ExamService) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		if err := s.WarmExamCache(ctx, examID); err != nil {
			return nil, err
		}
		data, err = s.rdb.Get(ctx, key).Bytes()
	}
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.ExamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload.Questions, nil
}

// GetAnswerKey returns the cached answer key, warming the cache on a miss.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) (AnswerKey, error) {
	key, err := s.readAnswerKey(ctx, examID)
	if errors.Is(err, redis.Nil) {
		if err := s.WarmExamCache(ctx, examID); err != nil {
			return nil, err
		}
		key, err = s.readAnswerKey(ctx, examID)
	}
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	return key, nil
}

func (s *ExamService) readAnswerKey(ctx context.Context, examID uuid.UUID) (AnswerKey, error) {
	id := examID.String()
	pipe := s.rdb.Pipeline()
	keyCmd := pipe.HGetAll(ctx, config.CacheKey.ExamAnswerKey(id))
	marksCmd := pipe.HGetAll(ctx, config.CacheKey.ExamMarksKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	correct, marks := keyCmd.Val(), marksCmd.Val()
	if len(correct) == 0 {
		return nil, redis.Nil
	}

	key := make(AnswerKey, len(correct))
	for rawID, opt := range correct {
		qID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("answer key question id %q: %w", rawID, err)
		}
		m, err := strconv.Atoi(marks[rawID])
		if err != nil {
			return nil, fmt.Errorf("marks of question %s: %w", rawID, err)
		}
		key[qID] = KeyEntry{Correct: model.Option(opt), Marks: m}
	}
	return key, nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

func buildPagination(page, perPage, total int) *response.Pagination {
	return &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
}
