package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/events"
	"github.com/spec-kit/verification-service/internal/gateway"
	"github.com/spec-kit/verification-service/internal/interview"
	"github.com/spec-kit/verification-service/internal/observability"
	"github.com/spec-kit/verification-service/internal/presenter"
	"github.com/spec-kit/verification-service/internal/repository"
	"github.com/spec-kit/verification-service/internal/session"
)

// fakeTicketRepo is an in-memory stand-in for the Postgres ticket
// store.
type fakeTicketRepo struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	byRef     map[string]string
	createErr error
	updateErr error
	refErr    error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets: make(map[string]*domain.Ticket),
		byRef:   make(map[string]string),
	}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *fakeTicketRepo) GetByAnnouncementRef(_ context.Context, ref string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[ref]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *r.tickets[id]
	return &clone, nil
}

func (r *fakeTicketRepo) SetAnnouncementRef(_ context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refErr != nil {
		return r.refErr
	}
	ticket, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.AnnouncementRef = &ref
	r.byRef[ref] = id
	return nil
}

func (r *fakeTicketRepo) UpdateState(_ context.Context, ticket *domain.Ticket, from domain.TicketState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.State != from {
		return repository.ErrStateConflict
	}
	stored.State = ticket.State
	stored.DeclineReason = ticket.DeclineReason
	stored.DecidedBy = ticket.DecidedBy
	stored.DecidedAt = ticket.DecidedAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTicketRepo) ExistsID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tickets[id]
	return ok, nil
}

func (r *fakeTicketRepo) stored(id string) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil
	}
	clone := *ticket
	return &clone
}

type sentMessage struct {
	channelID string
	content   gateway.Content
}

// fakeGateway serves queued inbound messages per channel and records
// everything sent. An empty queue blocks AwaitMessage until the context
// expires.
type fakeGateway struct {
	mu          sync.Mutex
	sent        []sentMessage
	queues      map[string][]gateway.Message
	sendErrFor  map[string]error
	unreachable map[string]bool
	refSeq      int
}

func newServiceFakeGateway() *fakeGateway {
	return &fakeGateway{
		queues:      make(map[string][]gateway.Message),
		sendErrFor:  make(map[string]error),
		unreachable: make(map[string]bool),
	}
}

func (g *fakeGateway) queue(channelID string, msgs ...gateway.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queues[channelID] = append(g.queues[channelID], msgs...)
}

func (g *fakeGateway) SendMessage(_ context.Context, channelID string, content gateway.Content) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.sendErrFor[channelID]; err != nil {
		return "", err
	}
	g.refSeq++
	g.sent = append(g.sent, sentMessage{channelID: channelID, content: content})
	return fmt.Sprintf("ref-%d", g.refSeq), nil
}

func (g *fakeGateway) AwaitMessage(ctx context.Context, channelID string, filter gateway.MessageFilter) (gateway.Message, error) {
	for {
		g.mu.Lock()
		pending := g.queues[channelID]
		for i, msg := range pending {
			if filter == nil || filter(msg) {
				g.queues[channelID] = append(pending[:i:i], pending[i+1:]...)
				g.mu.Unlock()
				return msg, nil
			}
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return gateway.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (g *fakeGateway) OpenPrivateChannel(_ context.Context, userID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unreachable[userID] {
		return "", gateway.ErrRecipientUnreachable
	}
	return "dm-" + userID, nil
}

func (g *fakeGateway) sentTo(channelID string) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, msg := range g.sent {
		if msg.channelID == channelID {
			out = append(out, msg)
		}
	}
	return out
}

func (g *fakeGateway) countBodies(channelID, body string) int {
	count := 0
	for _, msg := range g.sentTo(channelID) {
		if msg.content.Body == body {
			count++
		}
	}
	return count
}

func reply(channelID, authorID, content string) gateway.Message {
	return gateway.Message{Ref: "m", ChannelID: channelID, AuthorID: authorID, Content: content}
}

const reviewChannel = "review-channel"

// harness wires a full verification stack over fakes.
type harness struct {
	repo         *fakeTicketRepo
	gw           *fakeGateway
	registry     *session.MemoryRegistry
	metrics      *observability.Metrics
	tickets      *TicketService
	verification *VerificationService
}

func newHarness(questions []string, answerTimeout, reasonTimeout time.Duration) *harness {
	logger := zap.NewNop()
	repo := newFakeTicketRepo()
	gw := newServiceFakeGateway()
	present := presenter.NewPresenter(gw)
	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()
	registry := session.NewMemoryRegistry()

	tickets := NewTicketService(TicketDependencies{
		TicketRepo:      repo,
		Presenter:       present,
		Dispatcher:      dispatcher,
		Logger:          logger,
		ReviewChannelID: reviewChannel,
	})

	notifications := NewNotificationService(dispatcher, gw, present, logger)
	notifications.RegisterHandlers()

	collector := interview.NewCollector(gw)
	runner := interview.NewRunner(collector, present, questions, answerTimeout, logger)

	verification := NewVerificationService(VerificationDependencies{
		Sessions:        registry,
		Tickets:         tickets,
		Runner:          runner,
		Collector:       collector,
		Gateway:         gw,
		Presenter:       present,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
		ReviewChannelID: reviewChannel,
		ReasonTimeout:   reasonTimeout,
	})

	return &harness{
		repo:         repo,
		gw:           gw,
		registry:     registry,
		metrics:      metrics,
		tickets:      tickets,
		verification: verification,
	}
}

// waitFor polls until check passes or the deadline expires.
func waitFor(deadline time.Duration, check func() bool) bool {
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return check()
}

var errSendFailed = errors.New("send failed")
