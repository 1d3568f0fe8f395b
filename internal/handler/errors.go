package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// serviceErrors maps domain sentinels to their HTTP status and error code.
var serviceErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrExamInUse, http.StatusConflict, response.ErrExamInUse},
	{service.ErrNotExamAuthor, http.StatusForbidden, response.ErrNotExamAuthor},
	{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
	{service.ErrExamNotOpen, http.StatusConflict, response.ErrExamNotOpen},
	{service.ErrAttemptCompleted, http.StatusConflict, response.ErrAttemptCompleted},
	{service.ErrNoActiveAttempt, http.StatusNotFound, response.ErrNoActiveAttempt},
	{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
	{service.ErrSubmitInFlight, http.StatusConflict, response.ErrSubmitInFlight},
	{service.ErrAttemptExpired, http.StatusGone, response.ErrAttemptExpired},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrEmailTaken, http.StatusConflict, response.ErrConflict},
}

// failService writes the envelope for err. Unknown errors become 500s.
func failService(c *gin.Context, err error) {
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			response.Fail(c, se.status, se.code)
			return
		}
	}
	_ = c.Error(err)
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
