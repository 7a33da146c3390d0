package service

import (
	"context"
	"encoding/json"

	"ai-library-agent/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WorkspaceUpdate is the in-process message for one thread change.
type WorkspaceUpdate struct {
	UserID string                  `json:"user_id"`
	Update dto.ThreadUpdateMessage `json:"update"`
}

type IPublisherService interface {
	Publish(ctx context.Context, update WorkspaceUpdate) error
}

type publisherService struct {
	topicName string
	pubSub    *gochannel.GoChannel
}

func NewPublisherService(topicName string, pubSub *gochannel.GoChannel) IPublisherService {
	return &publisherService{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

func (ps *publisherService) Publish(ctx context.Context, update WorkspaceUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return ps.pubSub.Publish(ps.topicName, msg)
}
