package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}).SignedString([]byte("client-test"))
	require.NoError(t, err)
	return tok
}

func TestClient_GetExamSendsBearer(t *testing.T) {
	examID := uuid.New()
	var gotAuth string

	r := gin.New()
	r.GET("/api/v1/student/exams/:exam_id", func(c *gin.Context) {
		gotAuth = c.GetHeader("Authorization")
		response.Success(c, http.StatusOK, gin.H{"exam": model.Exam{ID: examID, Title: "Physics", DurationMinutes: 30}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := New(srv.URL+"/", StaticToken("abc"))
	exam, err := c.GetExam(context.Background(), examID)
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, examID, exam.ID)
	assert.Equal(t, "Physics", exam.Title)
	assert.Equal(t, 1800, exam.DurationSeconds())
}

func TestClient_APIError(t *testing.T) {
	r := gin.New()
	r.POST("/api/v1/student/exams/:exam_id/start", func(c *gin.Context) {
		response.Fail(c, http.StatusConflict, response.ErrAttemptCompleted)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	err := New(srv.URL, StaticToken("abc")).StartAttempt(context.Background(), uuid.New())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, response.ErrAttemptCompleted, apiErr.Code)
	assert.Equal(t, response.GetMessage(response.ErrAttemptCompleted), apiErr.Message)
	assert.True(t, IsCode(err, response.ErrAttemptCompleted))
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, StaticToken("abc")).GetExamQuestions(context.Background(), uuid.New())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Code)
}

func TestClient_SubmitAttempt(t *testing.T) {
	examID, q1 := uuid.New(), uuid.New()
	var got model.SubmitRequest

	r := gin.New()
	r.POST("/api/v1/student/exams/:exam_id/submit", func(c *gin.Context) {
		assert.NoError(t, json.NewDecoder(c.Request.Body).Decode(&got))
		response.Success(c, http.StatusOK, gin.H{"result": model.Result{
			ExamID:     examID,
			Score:      4,
			TotalMarks: 5,
			Percentage: 80,
			Status:     model.ResultPass,
		}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	res, err := New(srv.URL, StaticToken("abc")).SubmitAttempt(context.Background(), examID, model.AnswerMap{q1: model.OptionC})
	require.NoError(t, err)

	assert.Equal(t, model.AnswerMap{q1: model.OptionC}, got.Answers)
	assert.Equal(t, 4, res.Score)
	assert.True(t, res.Passed())
}

func TestClient_SubmitNilAnswersSendsEmptyObject(t *testing.T) {
	var raw map[string]json.RawMessage

	r := gin.New()
	r.POST("/api/v1/student/exams/:exam_id/submit", func(c *gin.Context) {
		assert.NoError(t, json.NewDecoder(c.Request.Body).Decode(&raw))
		response.Success(c, http.StatusOK, gin.H{"result": model.Result{}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, err := New(srv.URL, StaticToken("abc")).SubmitAttempt(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw["answers"]))
}

func TestClient_DecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br", r.Header.Get("Accept-Encoding"))

		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		json.NewEncoder(bw).Encode(response.Response{Data: gin.H{"exams": []model.Exam{{Title: "Chemistry"}}}})
		bw.Close()

		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "application/json")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	exams, err := New(srv.URL, StaticToken("abc")).ListExams(context.Background())
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, "Chemistry", exams[0].Title)
}

func TestStaticToken_Empty(t *testing.T) {
	_, err := StaticToken("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = New("http://127.0.0.1:0", StaticToken("")).ListExams(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

// loginServer issues tokens valid for ttl and rejects every student call
// with 401 when reject is set.
func loginServer(t *testing.T, ttl time.Duration, logins *atomic.Int32, reject *atomic.Bool) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		var req model.LoginRequest
		assert.NoError(t, json.NewDecoder(c.Request.Body).Decode(&req))
		if req.Password != "secret1" {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		logins.Add(1)
		response.Success(c, http.StatusOK, model.LoginResponse{
			Token: signedToken(t, ttl),
			User:  model.User{Email: req.Email, Role: model.RoleStudent},
		})
	})
	r.GET("/api/v1/student/results", func(c *gin.Context) {
		if reject.Load() {
			response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"results": []model.Result{}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginProvider_CachesToken(t *testing.T) {
	var logins atomic.Int32
	var reject atomic.Bool
	srv := loginServer(t, time.Hour, &logins, &reject)

	creds := NewLoginProvider(srv.URL, "ana@school.test", "secret1", nil)
	c := New(srv.URL, creds)

	for i := 0; i < 3; i++ {
		_, err := c.Results(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), logins.Load())
}

func TestLoginProvider_RefreshesNearExpiry(t *testing.T) {
	var logins atomic.Int32
	var reject atomic.Bool
	srv := loginServer(t, 30*time.Second, &logins, &reject)

	creds := NewLoginProvider(srv.URL, "ana@school.test", "secret1", nil)
	c := New(srv.URL, creds)

	_, err := c.Results(context.Background())
	require.NoError(t, err)
	_, err = c.Results(context.Background())
	require.NoError(t, err)

	// Tokens live for less than RefreshBefore, so every call logs in.
	assert.Equal(t, int32(2), logins.Load())
}

func TestLoginProvider_InvalidatedOn401(t *testing.T) {
	var logins atomic.Int32
	var reject atomic.Bool
	srv := loginServer(t, time.Hour, &logins, &reject)

	creds := NewLoginProvider(srv.URL, "ana@school.test", "secret1", nil)
	c := New(srv.URL, creds)

	reject.Store(true)
	_, err := c.Results(context.Background())
	assert.True(t, IsCode(err, response.ErrSessionInvalidated))

	reject.Store(false)
	_, err = c.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), logins.Load())
}

func TestLoginProvider_BadPassword(t *testing.T) {
	var logins atomic.Int32
	var reject atomic.Bool
	srv := loginServer(t, time.Hour, &logins, &reject)

	creds := NewLoginProvider(srv.URL, "ana@school.test", "wrong", nil)
	_, err := creds.Token(context.Background())

	require.Error(t, err)
	assert.True(t, IsCode(err, response.ErrInvalidCredentials))
}
