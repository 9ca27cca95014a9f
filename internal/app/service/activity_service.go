package service

import (
	"context"
	"maps"
	"time"

	"script_console/internal/common/security"
	"script_console/internal/domain/model"
	"script_console/internal/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ActivityService struct {
	repo   repository.ActivityRepository
	logger *zap.Logger
}

func NewActivityService(repo repository.ActivityRepository, logger *zap.Logger) *ActivityService {
	return &ActivityService{repo: repo, logger: logger}
}

// Record appends an audit entry. Storage failures are logged, never returned.
func (s *ActivityService) Record(ctx context.Context, action model.ActivityAction, level model.ActivityLevel, message string, actor security.Identity, details map[string]any) {
	d := make(map[string]any, len(details)+1)
	maps.Copy(d, details)
	if actor.Username != "" {
		d["performedBy"] = actor.Username
	}

	entry := &model.ActivityLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    actor.UserID,
		UserName:  actor.Name,
		UserRole:  actor.Role,
		Action:    action,
		Level:     level,
		Message:   message,
		Details:   d,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record activity",
			zap.String("action", string(action)),
			zap.String("message", message),
			zap.Error(err),
		)
	}
}

func (s *ActivityService) List(ctx context.Context, filter model.ActivityFilter) ([]model.ActivityLog, error) {
	return s.repo.List(ctx, filter)
}
