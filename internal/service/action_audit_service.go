package service

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-library-agent/internal/model"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/internal/repository"
	"ai-library-agent/pkg/events"
	pktNats "ai-library-agent/pkg/nats"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const auditDurable = "action-audit-worker"

// EventSubscriber delivers durable events to a handler. Implemented by the
// NATS subscriber.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

type IActionAuditService interface {
	Start(ctx context.Context) error
	History(ctx context.Context, userID uuid.UUID, key string, limit, offset int) ([]model.ActionAuditLog, int64, error)
	ActionHistory(ctx context.Context, userID uuid.UUID, key, actionID string) ([]model.ActionAuditLog, error)
}

type actionAuditService struct {
	repo       repository.ActionAuditRepository
	subscriber EventSubscriber
	logger     logger.ILogger
}

func NewActionAuditService(repo repository.ActionAuditRepository, sub EventSubscriber, log logger.ILogger) IActionAuditService {
	return &actionAuditService{
		repo:       repo,
		subscriber: sub,
		logger:     log,
	}
}

// Start consumes action events and persists them.
func (s *actionAuditService) Start(ctx context.Context) error {
	subject := pktNats.Subject("action.>")
	if err := s.subscriber.Subscribe(ctx, subject, auditDurable, s.handleEvent); err != nil {
		s.logger.Error("ActionAuditService", "Failed to start audit subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("ActionAuditService", "Audit worker started", map[string]interface{}{"subject": subject})
	return nil
}

func (s *actionAuditService) handleEvent(ctx context.Context, event events.Event) error {
	entry, err := auditLogFrom(event)
	if err != nil {
		// malformed events would be redelivered forever
		s.logger.Warn("ActionAuditService", "Skipping event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
		return nil
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("store audit log: %w", err)
	}
	return nil
}

func (s *actionAuditService) History(ctx context.Context, userID uuid.UUID, key string, limit, offset int) ([]model.ActionAuditLog, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FindByThread(ctx, userID.String(), key, limit, offset)
}

func (s *actionAuditService) ActionHistory(ctx context.Context, userID uuid.UUID, key, actionID string) ([]model.ActionAuditLog, error) {
	return s.repo.FindByAction(ctx, userID.String(), key, actionID)
}

func auditLogFrom(event events.Event) (*model.ActionAuditLog, error) {
	p := event.Payload()
	str := func(k string) string {
		v, _ := p[k].(string)
		return v
	}

	entry := &model.ActionAuditLog{
		ID:         uuid.New(),
		UserID:     str("user_id"),
		ThreadKey:  str("thread_key"),
		ActionID:   str("action_id"),
		EventType:  event.EventType(),
		ActionType: str("action_type"),
		ZoteroKey:  str("zotero_key"),
		Error:      str("error_message"),
		OccurredAt: event.Timestamp(),
	}
	if entry.ActionID == "" || entry.ThreadKey == "" {
		return nil, fmt.Errorf("event %s has no action or thread", event.EventType())
	}
	switch v := p["library_id"].(type) {
	case float64: // decoded from the wire
		entry.LibraryID = int(v)
	case int:
		entry.LibraryID = v
	}
	if raw, err := json.Marshal(p); err == nil {
		entry.Payload = datatypes.JSON(raw)
	}
	return entry, nil
}
