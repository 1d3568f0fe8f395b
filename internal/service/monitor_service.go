package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
)

// MonitorService fans attempt events out to live exam monitors over Redis
// pub/sub.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev to the exam's monitor channel. Failures are logged only;
// monitoring is best-effort.
func (s *MonitorService) Publish(ctx context.Context, ev model.AttemptEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal attempt event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", ev.ExamID.String()).
			Str("type", string(ev.Type)).
			Msg("Publish attempt event failed")
	}
}

// Subscribe attaches to the exam's monitor channel. The caller closes the
// returned subscription.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) (*redis.PubSub, error) {
	pubsub := s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	// Wait for the subscription confirmation so no event published after
	// the snapshot is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return pubsub, nil
}

// Snapshot returns the attempts of the exam currently in progress.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) ([]model.AttemptEvent, error) {
	return s.monitorRepo.ListInProgress(ctx, examID)
}
