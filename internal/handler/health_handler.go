package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-portal/internal/response"
)

// HealthHandler reports whether the server's stores are reachable.
type HealthHandler struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{pool: pool, rdb: rdb}
}

// Health godoc
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"status": "ok", "postgres": "ok", "redis": "ok"}
	code := http.StatusOK

	if err := h.pool.Ping(ctx); err != nil {
		status["postgres"] = "down"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = "down"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}

	response.Success(c, code, status)
}
