package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	ws "github.com/stemsi/exstem-portal/internal/websocket"
)

const (
	keepAliveInterval = 30 * time.Second
	readIdleTimeout   = 2 * keepAliveInterval
	snapshotTimeout   = 5 * time.Second // a slow query must not hold the upgrade
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live attempt events of an exam to its author.
type MonitorHandler struct {
	examService    *service.ExamService
	monitorService *service.MonitorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

func NewMonitorHandler(
	examService *service.ExamService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
	allowedOrigins []string,
) *MonitorHandler {
	return &MonitorHandler{
		examService:    examService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// MonitorExam godoc
// WS /ws/v1/faculty/exams/:exam_id/monitor
// Sends a snapshot of running attempts, then every started, submitted and
// expired event as it is published.
func (h *MonitorHandler) MonitorExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	exam, err := h.examService.AuthorExam(reqCtx, examID, claims.UserID)
	if err != nil {
		failService(c, err)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	pubsub, err := h.monitorService.Subscribe(reqCtx, examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Monitor subscribe failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer pubsub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("faculty_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()

	if err := h.sendSnapshot(reqCtx, conn, exam); err != nil {
		wsLog.Warn().Err(err).Msg("Failed to send monitor snapshot")
		return
	}

	closed := ws.DrainReads(conn, readIdleTimeout)
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	wsLog.Info().Msg("Faculty attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			return

		case <-closed:
			wsLog.Info().Msg("Faculty detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev model.AttemptEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				wsLog.Warn().Err(err).Msg("Dropping malformed attempt event")
				continue
			}
			if err := ws.WriteTyped(conn, ws.AttemptMessage{Event: ws.EventAttempt, Attempt: ev}); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}

		case <-keepAliveTicker.C:
			if err := ws.WritePing(conn); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor ping failed")
				return
			}
		}
	}
}

func (h *MonitorHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn, exam *model.Exam) error {
	fetchCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	attempts, err := h.monitorService.Snapshot(fetchCtx, exam.ID)
	if err != nil {
		ws.WriteError(conn, "could not load running attempts")
		return err
	}
	if attempts == nil {
		attempts = []model.AttemptEvent{}
	}

	return ws.WriteTyped(conn, ws.SnapshotMessage{
		Event:    ws.EventSnapshot,
		ExamID:   exam.ID.String(),
		Title:    exam.Title,
		Attempts: attempts,
	})
}
