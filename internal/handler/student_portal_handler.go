package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (exam taking, results).
type StudentPortalHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	examService *service.ExamService,
	attemptService *service.AttemptService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		examService:    examService,
		attemptService: attemptService,
	}
}

// ListExams godoc
// GET /api/v1/student/exams
func (h *StudentPortalHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.ListAll(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if exams == nil {
		exams = []model.Exam{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/student/exams/:exam_id
func (h *StudentPortalHandler) GetExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// GetQuestions godoc
// GET /api/v1/student/exams/:exam_id/questions
// Returns the ordered paper without correct answers.
func (h *StudentPortalHandler) GetQuestions(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	questions, err := h.examService.GetQuestions(c.Request.Context(), examID)
	if err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/start
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// SubmitAttempt godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades the answers and closes the attempt. Only the first submission counts.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), examID, claims.UserID, req.Answers)
	if err != nil {
		failService(c, err)
		return
	}
	result.StudentName = claims.Name

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ListResults godoc
// GET /api/v1/student/results
func (h *StudentPortalHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	results, err := h.attemptService.StudentResults(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if results == nil {
		results = []model.Result{}
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

func parseExamID(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}
