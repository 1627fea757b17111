package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/events"
	"github.com/spec-kit/verification-service/internal/gateway"
	"github.com/spec-kit/verification-service/internal/interview"
	"github.com/spec-kit/verification-service/internal/observability"
	"github.com/spec-kit/verification-service/internal/presenter"
	"github.com/spec-kit/verification-service/internal/session"
	apperrors "github.com/spec-kit/verification-service/pkg/util"
)

// VerificationService is the top-level coordinator for the two inbound
// flows. It consults the session registry before any blocking wait and
// guarantees a matching release on every exit path.
type VerificationService struct {
	sessions        session.Registry
	tickets         *TicketService
	runner          *interview.Runner
	collector       *interview.Collector
	gateway         gateway.Gateway
	presenter       *presenter.Presenter
	dispatcher      events.Dispatcher
	metrics         *observability.Metrics
	logger          *zap.Logger
	reviewChannelID string
	reasonTimeout   time.Duration
}

// VerificationDependencies bundles collaborators for the orchestrator.
type VerificationDependencies struct {
	Sessions        session.Registry
	Tickets         *TicketService
	Runner          *interview.Runner
	Collector       *interview.Collector
	Gateway         gateway.Gateway
	Presenter       *presenter.Presenter
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	ReviewChannelID string
	ReasonTimeout   time.Duration
}

// NewVerificationService constructs the orchestrator.
func NewVerificationService(deps VerificationDependencies) *VerificationService {
	return &VerificationService{
		sessions:        deps.Sessions,
		tickets:         deps.Tickets,
		runner:          deps.Runner,
		collector:       deps.Collector,
		gateway:         deps.Gateway,
		presenter:       deps.Presenter,
		dispatcher:      deps.Dispatcher,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
		reviewChannelID: deps.ReviewChannelID,
		reasonTimeout:   deps.ReasonTimeout,
	}
}

func interviewKey(requesterID string) string {
	return "interview:" + requesterID
}

func declineKey(announcementRef string) string {
	return "decline:" + announcementRef
}

// StartVerification runs the interview flow for one requester. All
// user-facing failures are reported back through the gateway; the
// returned error is for logging and metrics only.
func (s *VerificationService) StartVerification(ctx context.Context, requesterID, replyChannelID string) error {
	token, err := s.sessions.TryAcquire(ctx, interviewKey(requesterID), requesterID)
	var held *session.AlreadyHeldError
	if errors.As(err, &held) {
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeConflict)
		s.report(ctx, s.presenter.SendAlreadyInSession(ctx, replyChannelID))
		return apperrors.NewSessionConflict("requester already in a verification session", held.Holder)
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer s.sessions.Release(ctx, token)

	dmChannel, err := s.gateway.OpenPrivateChannel(ctx, requesterID)
	if err != nil {
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeUnreachable)
		s.report(ctx, s.presenter.SendCannotMessage(ctx, replyChannelID))
		if errors.Is(err, gateway.ErrRecipientUnreachable) {
			return apperrors.NewRecipientUnreachable(requesterID)
		}
		return apperrors.NewTransportFailure(err)
	}

	if err := s.presenter.SendIntro(ctx, dmChannel); err != nil {
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeUnreachable)
		s.report(ctx, s.presenter.SendCannotMessage(ctx, replyChannelID))
		return apperrors.NewTransportFailure(err)
	}
	s.report(ctx, s.presenter.SendCheckDirectMessage(ctx, replyChannelID))

	result := s.runner.Run(ctx, requesterID, dmChannel)
	if result.Aborted {
		// Abandoned interviews end silently: no ticket, no message.
		s.publishAborted(ctx, requesterID, result)
		s.recordAbort(result.Reason)
		return nil
	}

	// Free the requester before the slower filing steps; the deferred
	// release is a no-op after this.
	s.sessions.Release(ctx, token)

	ticket, err := s.tickets.Create(ctx, requesterID, result.Answers)
	if err != nil {
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeFailed)
		s.report(ctx, s.presenter.SendSubmissionFailed(ctx, dmChannel))
		return err
	}

	if err := s.tickets.Announce(ctx, ticket); err != nil {
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeFailed)
		s.report(ctx, s.presenter.SendSubmissionFailed(ctx, dmChannel))
		return err
	}

	s.report(ctx, s.presenter.SendSubmissionConfirmation(ctx, dmChannel, ticket.ID))
	s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeCompleted)
	return nil
}

// HandleModeratorAction runs the decision flow for an announced ticket.
func (s *VerificationService) HandleModeratorAction(ctx context.Context, moderatorID string, action domain.ModeratorAction, announcementRef string) error {
	ticket, err := s.tickets.GetByAnnouncementRef(ctx, announcementRef)
	if err != nil {
		if apperrors.HasCode(err, "NOT_FOUND") {
			s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeFailed)
			s.report(ctx, s.presenter.SendTicketNotFound(ctx, s.reviewChannelID))
		}
		return err
	}
	if ticket.State.Terminal() {
		// Already resolved; the reference is stale.
		s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeFailed)
		s.report(ctx, s.presenter.SendTicketNotFound(ctx, s.reviewChannelID))
		return apperrors.NewNotFound("ticket", map[string]any{"announcement_ref": announcementRef})
	}

	switch action {
	case domain.ActionAccept:
		return s.accept(ctx, ticket, moderatorID)
	case domain.ActionDecline:
		return s.decline(ctx, ticket, moderatorID, announcementRef)
	default:
		return apperrors.NewValidationError("unknown moderator action", map[string]any{"action": string(action)})
	}
}

func (s *VerificationService) accept(ctx context.Context, ticket *domain.Ticket, moderatorID string) error {
	if err := s.tickets.Accept(ctx, ticket, moderatorID); err != nil {
		s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeFailed)
		s.report(ctx, s.presenter.SendDecisionFailed(ctx, s.reviewChannelID, ticket.ID))
		return err
	}
	s.report(ctx, s.presenter.SendDecisionDone(ctx, s.reviewChannelID, ticket.ID, domain.TicketStateAccepted))
	s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeCompleted)
	return nil
}

func (s *VerificationService) decline(ctx context.Context, ticket *domain.Ticket, moderatorID, announcementRef string) error {
	token, err := s.sessions.TryAcquire(ctx, declineKey(announcementRef), moderatorID)
	var held *session.AlreadyHeldError
	if errors.As(err, &held) {
		s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeConflict)
		s.report(ctx, s.presenter.SendDeclineInProgress(ctx, s.reviewChannelID, ticket.ID, held.Holder))
		return apperrors.NewSessionConflict("decline already in progress", held.Holder)
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer s.sessions.Release(ctx, token)

	if err := s.presenter.SendReasonPrompt(ctx, s.reviewChannelID, ticket.ID, s.reasonTimeout); err != nil {
		s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeFailed)
		return apperrors.NewTransportFailure(err)
	}

	reason, err := s.collector.Await(ctx, s.reviewChannelID, gateway.FromAuthor(moderatorID), s.reasonTimeout)
	if err != nil {
		s.sessions.Release(ctx, token)
		switch {
		case errors.Is(err, interview.ErrTimedOut):
			s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeTimedOut)
			s.report(ctx, s.presenter.SendReasonAbandoned(ctx, s.reviewChannelID))
			return apperrors.NewTimeout("decline reason prompt unanswered")
		case errors.Is(err, interview.ErrCancelled):
			s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeCancelled)
			s.report(ctx, s.presenter.SendReasonAbandoned(ctx, s.reviewChannelID))
			return apperrors.NewCancelled("decline cancelled by moderator")
		default:
			s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeFailed)
			return apperrors.NewTransportFailure(err)
		}
	}

	s.sessions.Release(ctx, token)

	if err := s.tickets.Decline(ctx, ticket, moderatorID, reason); err != nil {
		s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeFailed)
		s.report(ctx, s.presenter.SendDecisionFailed(ctx, s.reviewChannelID, ticket.ID))
		return err
	}

	s.report(ctx, s.presenter.SendDecisionDone(ctx, s.reviewChannelID, ticket.ID, domain.TicketStateDeclined))
	s.metrics.RecordFlow(observability.FlowDecision, observability.OutcomeCompleted)
	return nil
}

func (s *VerificationService) recordAbort(reason interview.AbortReason) {
	switch reason {
	case interview.AbortCancelled:
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeCancelled)
	case interview.AbortTimedOut:
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeTimedOut)
	default:
		s.metrics.RecordFlow(observability.FlowInterview, observability.OutcomeUnreachable)
	}
}

func (s *VerificationService) publishAborted(ctx context.Context, requesterID string, result interview.Result) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventInterviewAborted,
		Timestamp: time.Now(),
		Payload: events.InterviewAbortedPayload{
			RequesterID: requesterID,
			AbortReason: string(result.Reason),
			Question:    result.Question,
		},
	})
}

// report logs best-effort gateway deliveries that failed. Delivery
// failure never changes the flow outcome.
func (s *VerificationService) report(_ context.Context, err error) {
	if err != nil {
		s.logger.Warn("gateway notice undelivered", zap.Error(err))
	}
}
