package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-service/internal/api/dto"
	"github.com/spec-kit/verification-service/internal/auth"
	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/service"
	apperrors "github.com/spec-kit/verification-service/pkg/util"
)

// EventsHandler receives inbound UI events from the gateway dispatcher.
// Both entry points are fire-and-forget: the flow runs detached and all
// user-facing failures travel back through the gateway, never this
// response.
type EventsHandler struct {
	verification *service.VerificationService
	baseCtx      context.Context
	logger       *zap.Logger
}

// NewEventsHandler constructs the handler. baseCtx bounds detached
// flows; it is cancelled at shutdown.
func NewEventsHandler(verification *service.VerificationService, baseCtx context.Context, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{verification: verification, baseCtx: baseCtx, logger: logger}
}

// StartVerification POST /events/verification/start.
func (h *EventsHandler) StartVerification(c *fiber.Ctx) error {
	var req dto.StartVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RequesterID == "" || req.ChannelID == "" {
		return apperrors.NewValidationError("requester_id and channel_id required", nil)
	}

	caller, _ := auth.CallerFromContext(c)
	h.logger.Info("verification start dispatched",
		zap.String("caller", caller),
		zap.String("requester_id", req.RequesterID))

	h.runDetached("start_verification", func(ctx context.Context) error {
		return h.verification.StartVerification(ctx, req.RequesterID, req.ChannelID)
	})
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.EventAcceptedResponse{Status: "accepted"}})
}

// ModeratorDecision POST /events/verification/decision.
func (h *EventsHandler) ModeratorDecision(c *fiber.Ctx) error {
	var req dto.ModeratorDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ModeratorID == "" || req.AnnouncementRef == "" {
		return apperrors.NewValidationError("moderator_id and announcement_ref required", nil)
	}
	action := domain.ModeratorAction(strings.ToUpper(strings.TrimSpace(req.Action)))
	if !action.Valid() {
		return apperrors.NewValidationError("action must be ACCEPT or DECLINE", nil)
	}

	caller, _ := auth.CallerFromContext(c)
	h.logger.Info("moderator decision dispatched",
		zap.String("caller", caller),
		zap.String("moderator_id", req.ModeratorID),
		zap.String("action", string(action)))

	h.runDetached("moderator_decision", func(ctx context.Context) error {
		return h.verification.HandleModeratorAction(ctx, req.ModeratorID, action, req.AnnouncementRef)
	})
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.EventAcceptedResponse{Status: "accepted"}})
}

func (h *EventsHandler) runDetached(flow string, fn func(context.Context) error) {
	go func() {
		if err := fn(h.baseCtx); err != nil {
			h.logger.Info("flow finished with error", zap.String("flow", flow), zap.Error(err))
		}
	}()
}
