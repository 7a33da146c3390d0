package service

import (
	"context"
	"encoding/json"

	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/events"
	"ai-library-agent/pkg/thread"
	"ai-library-agent/pkg/workspace"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Websocket frame types pushed to clients.
const (
	FrameThreadUpdate = "thread.update"
	FrameActionUpdate = "action.update"
)

// UpdateDelivery pushes real-time frames to a user's clients. Implemented by
// the websocket hub.
type UpdateDelivery interface {
	Send(ctx context.Context, userID uuid.UUID, msgType string, payload interface{}) error
}

// EventPublisher sends durable domain events. Implemented by the NATS
// publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type WorkspaceLookup interface {
	Get(key string) (*workspace.Workspace, bool)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	workspaces WorkspaceLookup
	delivery   UpdateDelivery
	events     EventPublisher
	logger     logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	workspaces WorkspaceLookup,
	delivery UpdateDelivery,
	events EventPublisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		workspaces: workspaces,
		delivery:   delivery,
		events:     events,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage fans one workspace update out to the websocket clients and,
// for action changes, to the audit stream. Delivery is best effort so every
// message is acked.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var update WorkspaceUpdate
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		cs.logger.Warn("ConsumerService", "Failed to unmarshal workspace update", map[string]interface{}{"error": err.Error()})
		return
	}
	userID, err := uuid.Parse(update.UserID)
	if err != nil {
		cs.logger.Warn("ConsumerService", "Workspace update without valid user", map[string]interface{}{"user_id": update.UserID})
		return
	}

	if cs.delivery != nil {
		if err := cs.delivery.Send(ctx, userID, FrameThreadUpdate, update.Update); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to deliver thread update", map[string]interface{}{"error": err.Error()})
		}
	}

	if update.Update.Kind != thread.ChangeActions || len(update.Update.ActionIDs) == 0 {
		return
	}
	ws, ok := cs.workspaces.Get(update.Update.ThreadKey)
	if !ok {
		return
	}

	changed := make([]*dto.ActionResponse, 0, len(update.Update.ActionIDs))
	for _, id := range update.Update.ActionIDs {
		a, ok := ws.Actions.Get(id)
		if !ok {
			continue
		}
		changed = append(changed, toActionResponse(a, ws.Reconciler.IsBusy(id)))

		if cs.events == nil {
			continue
		}
		ev, ok := events.NewActionEvent(ws.UserID, ws.Key, a)
		if !ok {
			continue
		}
		if err := cs.events.Publish(ctx, ev); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to publish action event", map[string]interface{}{
				"action_id": id,
				"error":     err.Error(),
			})
		}
	}

	if cs.delivery != nil && len(changed) > 0 {
		if err := cs.delivery.Send(ctx, userID, FrameActionUpdate, changed); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to deliver action update", map[string]interface{}{"error": err.Error()})
		}
	}
}
