package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/events"
	"github.com/spec-kit/verification-service/internal/presenter"
	"github.com/spec-kit/verification-service/internal/repository"
	apperrors "github.com/spec-kit/verification-service/pkg/util"
)

const maxIDAttempts = 5

// TicketService owns the ticket lifecycle: creation, announcement, and
// the single Pending -> Accepted|Declined transition. Every transition
// is persisted synchronously before the operation reports success.
type TicketService struct {
	tickets         repository.TicketRepository
	presenter       *presenter.Presenter
	dispatcher      events.Dispatcher
	logger          *zap.Logger
	reviewChannelID string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	Presenter       *presenter.Presenter
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	ReviewChannelID string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:         deps.TicketRepo,
		presenter:       deps.Presenter,
		dispatcher:      deps.Dispatcher,
		logger:          deps.Logger,
		reviewChannelID: deps.ReviewChannelID,
	}
}

var allowedTransitions = map[domain.TicketState][]domain.TicketState{
	domain.TicketStatePending:  {domain.TicketStateAccepted, domain.TicketStateDeclined},
	domain.TicketStateAccepted: {},
	domain.TicketStateDeclined: {},
}

func isValidTransition(current, next domain.TicketState) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Create files a Pending ticket with a fresh collision-free id and the
// completed answer list.
func (s *TicketService) Create(ctx context.Context, requesterID string, answers []domain.Answer) (*domain.Ticket, error) {
	id, err := s.uniqueTicketID(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}

	ticket := &domain.Ticket{
		ID:          id,
		RequesterID: requesterID,
		Answers:     answers,
		State:       domain.TicketStatePending,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			RequesterID: ticket.RequesterID,
			AnswerCount: len(ticket.Answers),
		},
	})
	return ticket, nil
}

// GetByAnnouncementRef resolves a ticket from its review posting.
func (s *TicketService) GetByAnnouncementRef(ctx context.Context, ref string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByAnnouncementRef(ctx, ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"announcement_ref": ref})
		}
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return ticket, nil
}

// Announce posts the ticket for moderator review and records the
// reference. A failed gateway post leaves the ticket Pending with no
// reference: degraded but valid, no retry.
func (s *TicketService) Announce(ctx context.Context, ticket *domain.Ticket) error {
	if s.reviewChannelID == "" {
		s.logger.Warn("no review channel configured; ticket stays unannounced", zap.String("ticket_id", ticket.ID))
		return nil
	}

	ref, err := s.presenter.AnnounceTicket(ctx, s.reviewChannelID, ticket)
	if err != nil {
		s.logger.Warn("ticket announcement failed; ticket stays unannounced",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}

	if err := s.tickets.SetAnnouncementRef(ctx, ticket.ID, ref); err != nil {
		return apperrors.NewPersistenceFailure(err)
	}
	ticket.AnnouncementRef = &ref

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAnnounced,
		TicketID: ticket.ID,
		Payload:  events.TicketAnnouncedPayload{AnnouncementRef: ref},
	})
	return nil
}

// Accept transitions the ticket to Accepted. Requester notification and
// any access grant are handled by event subscribers, at-least-once
// best-effort; their failure never reverses the transition.
func (s *TicketService) Accept(ctx context.Context, ticket *domain.Ticket, moderatorID string) error {
	if err := s.transition(ctx, ticket, domain.TicketStateAccepted, moderatorID, nil); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAccepted,
		TicketID: ticket.ID,
		Payload: events.TicketAcceptedPayload{
			RequesterID: ticket.RequesterID,
			ModeratorID: moderatorID,
		},
	})
	return nil
}

// Decline transitions the ticket to Declined, recording the moderator's
// reason. The requester notice carries the rendered reason and is
// best-effort via the event subscribers.
func (s *TicketService) Decline(ctx context.Context, ticket *domain.Ticket, moderatorID string, reason domain.Answer) error {
	rendered := reason.Display()
	if err := s.transition(ctx, ticket, domain.TicketStateDeclined, moderatorID, &rendered); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeclined,
		TicketID: ticket.ID,
		Payload: events.TicketDeclinedPayload{
			RequesterID: ticket.RequesterID,
			ModeratorID: moderatorID,
			Reason:      rendered,
		},
	})
	return nil
}

func (s *TicketService) transition(ctx context.Context, ticket *domain.Ticket, next domain.TicketState, moderatorID string, declineReason *string) error {
	if !isValidTransition(ticket.State, next) {
		// Terminal states are never left.
		return apperrors.NewInvalidTransition(ticket.ID, string(ticket.State), string(next))
	}

	now := time.Now()
	previous := *ticket
	ticket.State = next
	ticket.DecidedBy = &moderatorID
	ticket.DecidedAt = &now
	ticket.DeclineReason = declineReason

	// The snapshot check above is advisory only; the conditional
	// update against the stored state is what prevents a stale
	// snapshot from overwriting a concurrent decision.
	if err := s.tickets.UpdateState(ctx, ticket, previous.State); err != nil {
		*ticket = previous
		switch {
		case errors.Is(err, repository.ErrStateConflict):
			from := "unknown"
			if current, gerr := s.tickets.GetByID(ctx, ticket.ID); gerr == nil {
				from = string(current.State)
			}
			return apperrors.NewInvalidTransition(ticket.ID, from, string(next))
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		default:
			return apperrors.NewPersistenceFailure(err)
		}
	}
	return nil
}

func (s *TicketService) uniqueTicketID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := generateTicketID()
		exists, err := s.tickets.ExistsID(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("could not generate a unique ticket id")
}

func generateTicketID() string {
	return "VRF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
