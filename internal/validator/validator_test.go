package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bindBody(t *testing.T, body string, dst interface{}) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBind_AddQuestion(t *testing.T) {
	valid := `{"question_text":"2+2?","option_a":"3","option_b":"4","option_c":"5","option_d":"6","correct_option":"b","marks":2}`
	var req model.AddQuestionRequest
	require.Nil(t, bindBody(t, valid, &req))
	assert.Equal(t, "b", req.CorrectOption)

	invalid := `{"question_text":"2+2?","option_a":"3","option_b":"4","option_c":"5","option_d":"6","correct_option":"E","marks":2}`
	fields := bindBody(t, invalid, &model.AddQuestionRequest{})
	require.NotNil(t, fields)
	assert.Equal(t, "correct_option must be one of A, B, C, D", fields["correct_option"])
}

func TestBind_SubmitAnswers(t *testing.T) {
	q := uuid.New()

	var req model.SubmitRequest
	require.Nil(t, bindBody(t, `{"answers":{"`+q.String()+`":"C"}}`, &req))
	assert.Equal(t, model.OptionC, req.Answers[q])

	var empty model.SubmitRequest
	require.Nil(t, bindBody(t, `{"answers":{}}`, &empty))
	assert.Empty(t, empty.Answers)

	fields := bindBody(t, `{"answers":{"`+q.String()+`":"Z"}}`, &model.SubmitRequest{})
	assert.NotNil(t, fields)

	// Labels are accepted loosely; grading normalises them before storage.
	var padded model.SubmitRequest
	require.Nil(t, bindBody(t, `{"answers":{"`+q.String()+`":" b"}}`, &padded))
	o, ok := model.ParseOption(string(padded.Answers[q]))
	require.True(t, ok)
	assert.Equal(t, model.OptionB, o)
}

func TestBind_LoginRequiredFields(t *testing.T) {
	fields := bindBody(t, `{"email":"not-an-email"}`, &model.LoginRequest{})
	require.NotNil(t, fields)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestBind_MalformedJSON(t *testing.T) {
	fields := bindBody(t, `{`, &model.LoginRequest{})
	assert.Contains(t, fields, "detail")
}
