package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/verification-service/internal/events"
	"github.com/spec-kit/verification-service/internal/gateway"
	"github.com/spec-kit/verification-service/internal/presenter"
)

// NotificationService delivers decision notices to requesters. All
// deliveries are best-effort: a failure is logged and never blocks or
// reverses the state transition that triggered it.
type NotificationService struct {
	dispatcher events.Dispatcher
	gateway    gateway.Gateway
	presenter  *presenter.Presenter
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, gw gateway.Gateway, p *presenter.Presenter, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		gateway:    gw,
		presenter:  p,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to decision events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketAccepted, n.handleTicketAccepted)
	n.dispatcher.Subscribe(events.EventTicketDeclined, n.handleTicketDeclined)
}

func (n *NotificationService) handleTicketAccepted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAcceptedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Info("TicketAccepted",
		zap.String("ticket_id", event.TicketID),
		zap.String("moderator_id", payload.ModeratorID))

	channelID, err := n.gateway.OpenPrivateChannel(ctx, payload.RequesterID)
	if err != nil {
		return err
	}
	return n.presenter.SendAcceptNotice(ctx, channelID)
}

func (n *NotificationService) handleTicketDeclined(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketDeclinedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Info("TicketDeclined",
		zap.String("ticket_id", event.TicketID),
		zap.String("moderator_id", payload.ModeratorID))

	channelID, err := n.gateway.OpenPrivateChannel(ctx, payload.RequesterID)
	if err != nil {
		return err
	}
	return n.presenter.SendDeclineNotice(ctx, channelID, payload.ModeratorID, payload.Reason)
}
