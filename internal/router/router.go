package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	Monitor       *handler.MonitorHandler
	Health        *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)

	// Rate limiter for auth routes (per IP, per minute).
	authLimiter := middleware.NewRateLimiter(rdb, "auth", cfg.AuthRateLimit, time.Minute, log)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)

		// Authenticated profile routes
		auth.POST("/logout", middleware.RequireJWT(authService), handlers.Auth.Logout)
		auth.GET("/me",
			middleware.RequireJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
			handlers.Auth.Me,
		)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.RequireRole(model.RoleStudent),
		middleware.CacheControl("no-store"),
	)
	{
		studentAPI.GET("/exams", handlers.StudentPortal.ListExams)
		studentAPI.GET("/exams/:exam_id", handlers.StudentPortal.GetExam)
		studentAPI.GET("/exams/:exam_id/questions", handlers.StudentPortal.GetQuestions)
		studentAPI.POST("/exams/:exam_id/start", handlers.StudentPortal.StartAttempt)
		studentAPI.POST("/exams/:exam_id/submit", handlers.StudentPortal.SubmitAttempt)
		studentAPI.GET("/results", handlers.StudentPortal.ListResults)
	}

	// ─── 3. Faculty Group (JWT + Single Device) ────────────────────────
	facultyAPI := router.Group("/api/v1/faculty")
	facultyAPI.Use(
		middleware.RequireJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.RequireRole(model.RoleFaculty),
	)
	{
		facultyAPI.GET("/exams", handlers.Exam.ListExams)
		facultyAPI.POST("/exams", handlers.Exam.CreateExam)
		facultyAPI.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		facultyAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		facultyAPI.GET("/exams/:exam_id/questions", handlers.Exam.ListQuestions)
		facultyAPI.POST("/exams/:exam_id/questions", handlers.Exam.AddQuestion)
		facultyAPI.GET("/exams/:exam_id/results", handlers.Exam.GetExamResults)
		facultyAPI.PUT("/questions/:question_id", handlers.Exam.UpdateQuestion)
		facultyAPI.DELETE("/questions/:question_id", handlers.Exam.DeleteQuestion)
	}

	// ─── 4. WebSocket Group (Faculty WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.RequireRole(model.RoleFaculty),
	)
	{
		ws.GET("/faculty/exams/:exam_id/monitor", handlers.Monitor.MonitorExam)
	}

	return router
}
