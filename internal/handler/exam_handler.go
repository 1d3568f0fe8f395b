package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// ExamHandler handles faculty exam management endpoints.
type ExamHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, attemptService *service.AttemptService) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		attemptService: attemptService,
	}
}

// ListExams godoc
// GET /api/v1/faculty/exams
// Lists the caller's exams with pagination.
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, perPage := pageParams(c)

	exams, pagination, err := h.examService.ListByAuthor(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if exams == nil {
		exams = []model.Exam{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// CreateExam godoc
// POST /api/v1/faculty/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/faculty/exams/:exam_id
// Replaces the exam's settings. Refused while attempts are running.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/faculty/exams/:exam_id
// Deletes the exam with its questions and results. Refused while attempts are running.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID, claims.UserID); err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "exam deleted successfully"})
}

// AddQuestion godoc
// POST /api/v1/faculty/exams/:exam_id/questions
// Appends a question and refreshes the exam's cached paper and key.
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.examService.AddQuestion(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// ListQuestions godoc
// GET /api/v1/faculty/exams/:exam_id/questions
// Returns the questions with their correct options.
func (h *ExamHandler) ListQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	questions, err := h.examService.ListQuestionsWithKey(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failService(c, err)
		return
	}

	if questions == nil {
		questions = []model.QuestionWithKey{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// UpdateQuestion godoc
// PUT /api/v1/faculty/questions/:question_id
func (h *ExamHandler) UpdateQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	questionID, ok := parseQuestionID(c)
	if !ok {
		return
	}

	var req model.UpdateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.examService.UpdateQuestion(c.Request.Context(), questionID, claims.UserID, &req)
	if err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": question})
}

// DeleteQuestion godoc
// DELETE /api/v1/faculty/questions/:question_id
func (h *ExamHandler) DeleteQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	questionID, ok := parseQuestionID(c)
	if !ok {
		return
	}

	if err := h.examService.DeleteQuestion(c.Request.Context(), questionID, claims.UserID); err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "question deleted successfully"})
}

// GetExamResults godoc
// GET /api/v1/faculty/exams/:exam_id/results
// Returns paginated results of closed attempts.
func (h *ExamHandler) GetExamResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	page, perPage := pageParams(c)

	results, pagination, err := h.attemptService.ExamResults(c.Request.Context(), examID, claims.UserID, page, perPage)
	if err != nil {
		failService(c, err)
		return
	}

	if results == nil {
		results = []model.Result{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	return page, perPage
}

func parseQuestionID(c *gin.Context) (uuid.UUID, bool) {
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return questionID, true
}
