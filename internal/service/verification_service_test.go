package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/observability"
	apperrors "github.com/spec-kit/verification-service/pkg/util"
)

// questionPrompts counts interview question messages delivered to a
// channel.
func questionPrompts(h *harness, channelID string) int {
	count := 0
	for _, msg := range h.gw.sentTo(channelID) {
		if strings.HasPrefix(msg.content.Title, "Question ") {
			count++
		}
	}
	return count
}

func sessionFree(h *harness, key string) bool {
	ctx := context.Background()
	token, err := h.registry.TryAcquire(ctx, key, "probe")
	if err != nil {
		return false
	}
	h.registry.Release(ctx, token)
	return true
}

func TestStartVerificationHappyPath(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()

	h.gw.queue("dm-user-1",
		reply("dm-user-1", "user-1", "alice"),
		reply("dm-user-1", "user-1", "to help out"),
	)

	if err := h.verification.StartVerification(ctx, "user-1", "lobby"); err != nil {
		t.Fatalf("StartVerification: %v", err)
	}

	// One ticket, announced, pending review.
	var ticket *domain.Ticket
	h.repo.mu.Lock()
	for _, stored := range h.repo.tickets {
		clone := *stored
		ticket = &clone
	}
	h.repo.mu.Unlock()
	if ticket == nil {
		t.Fatal("no ticket filed")
	}
	if ticket.State != domain.TicketStatePending || !ticket.Announced() {
		t.Errorf("ticket state=%s announced=%v, want Pending and announced", ticket.State, ticket.Announced())
	}
	if len(ticket.Answers) != 2 || ticket.Answers[1].Text != "to help out" {
		t.Errorf("captured answers = %+v", ticket.Answers)
	}

	if h.gw.countBodies("lobby", "Please check your direct messages!") != 1 {
		t.Error("missing check-your-messages acknowledgement")
	}
	confirmed := false
	for _, msg := range h.gw.sentTo("dm-user-1") {
		if msg.content.Footer == ticket.ID {
			confirmed = true
		}
	}
	if !confirmed {
		t.Error("confirmation with ticket id not delivered")
	}
	if len(h.gw.sentTo(reviewChannel)) != 1 {
		t.Errorf("review channel received %d messages, want 1 announcement", len(h.gw.sentTo(reviewChannel)))
	}
	if !sessionFree(h, "interview:user-1") {
		t.Error("session still held after a completed interview")
	}
	if got := h.metrics.FlowCount(observability.FlowInterview, observability.OutcomeCompleted); got != 1 {
		t.Errorf("completed interview count = %d, want 1", got)
	}
}

func TestConcurrentStartsAdmitOneRequester(t *testing.T) {
	h := newHarness(testQuestions(), 150*time.Millisecond, time.Second)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		// No answers queued: blocks on question 1 until timeout.
		done <- h.verification.StartVerification(ctx, "user-1", "lobby-1")
	}()

	if !waitFor(3*time.Second, func() bool { return questionPrompts(h, "dm-user-1") >= 1 }) {
		t.Fatal("first interview never reached question 1")
	}

	err := h.verification.StartVerification(ctx, "user-1", "lobby-2")
	if !apperrors.HasCode(err, "SESSION_CONFLICT") {
		t.Fatalf("second start = %v, want SESSION_CONFLICT", err)
	}
	if h.gw.countBodies("lobby-2", "You are already in a verification session.") != 1 {
		t.Error("conflicting caller was not told a session is active")
	}
	if got := questionPrompts(h, "dm-user-1"); got != 1 {
		t.Errorf("question prompts = %d, want 1; losing start must not prompt", got)
	}

	if err := <-done; err != nil {
		t.Fatalf("first start = %v, want silent timeout abort", err)
	}
	if len(h.repo.tickets) != 0 {
		t.Error("timed-out interview filed a ticket")
	}
	if !sessionFree(h, "interview:user-1") {
		t.Error("session still held after timeout abort")
	}
	if got := h.metrics.FlowCount(observability.FlowInterview, observability.OutcomeConflict); got != 1 {
		t.Errorf("conflict count = %d, want 1", got)
	}
	if got := h.metrics.FlowCount(observability.FlowInterview, observability.OutcomeTimedOut); got != 1 {
		t.Errorf("timed-out count = %d, want 1", got)
	}
}

func TestCancelAbortsSilentlyAndReleases(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()

	h.gw.queue("dm-user-1",
		reply("dm-user-1", "user-1", "alice"),
		reply("dm-user-1", "user-1", "Cancel"),
	)
	if err := h.verification.StartVerification(ctx, "user-1", "lobby"); err != nil {
		t.Fatalf("cancelled start = %v, want nil", err)
	}
	if len(h.repo.tickets) != 0 {
		t.Error("cancelled interview filed a ticket")
	}
	for _, msg := range h.gw.sentTo("dm-user-1") {
		if msg.content.Title == "All done!" {
			t.Error("cancelled interview received a confirmation")
		}
	}

	// The requester can restart straight away.
	h.gw.queue("dm-user-1",
		reply("dm-user-1", "user-1", "alice"),
		reply("dm-user-1", "user-1", "second try"),
	)
	if err := h.verification.StartVerification(ctx, "user-1", "lobby"); err != nil {
		t.Fatalf("restart after cancel = %v", err)
	}
	if len(h.repo.tickets) != 1 {
		t.Fatalf("restart filed %d tickets, want 1", len(h.repo.tickets))
	}
}

func TestUnreachableRequesterReleasesSession(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()
	h.gw.unreachable["user-1"] = true

	err := h.verification.StartVerification(ctx, "user-1", "lobby")
	if !apperrors.HasCode(err, "RECIPIENT_UNREACHABLE") {
		t.Fatalf("StartVerification = %v, want RECIPIENT_UNREACHABLE", err)
	}
	if h.gw.countBodies("lobby", "We could not send you a direct message. Please allow direct messages and try again.") != 1 {
		t.Error("requester was not told their messages are closed")
	}
	if !sessionFree(h, "interview:user-1") {
		t.Error("session still held after unreachable abort")
	}
}

func TestPersistenceFailureReportsSubmissionFailed(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()
	h.repo.createErr = errSendFailed

	h.gw.queue("dm-user-1",
		reply("dm-user-1", "user-1", "alice"),
		reply("dm-user-1", "user-1", "to help"),
	)
	err := h.verification.StartVerification(ctx, "user-1", "lobby")
	if !apperrors.HasCode(err, "PERSISTENCE_FAILURE") {
		t.Fatalf("StartVerification = %v, want PERSISTENCE_FAILURE", err)
	}
	failed := false
	for _, msg := range h.gw.sentTo("dm-user-1") {
		if strings.Contains(msg.content.Body, "Something went wrong") {
			failed = true
		}
	}
	if !failed {
		t.Error("requester was not told the submission failed")
	}
	if !sessionFree(h, "interview:user-1") {
		t.Error("session still held after persistence failure")
	}
}

// announcedTicket files and announces a ticket, returning it with its
// review reference set.
func announcedTicket(t *testing.T, h *harness, requesterID string) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := h.tickets.Create(ctx, requesterID, []domain.Answer{{Text: "hi"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.tickets.Announce(ctx, ticket); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	return ticket
}

func TestAcceptDecision(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()
	ticket := announcedTicket(t, h, "user-1")

	err := h.verification.HandleModeratorAction(ctx, "mod-1", domain.ActionAccept, *ticket.AnnouncementRef)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	stored := h.repo.stored(ticket.ID)
	if stored.State != domain.TicketStateAccepted {
		t.Errorf("state = %s, want %s", stored.State, domain.TicketStateAccepted)
	}
	if stored.DecidedBy == nil || *stored.DecidedBy != "mod-1" {
		t.Errorf("decided_by = %v, want mod-1", stored.DecidedBy)
	}
	if h.gw.countBodies(reviewChannel, "Ticket "+ticket.ID+" has been accepted!") != 1 {
		t.Error("moderators were not told the decision was recorded")
	}
	if len(h.gw.sentTo("dm-user-1")) != 1 {
		t.Error("requester did not receive the accept notice")
	}
}

func TestConcurrentDeclinesAdmitOneModerator(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, 2*time.Second)
	ctx := context.Background()
	ticket := announcedTicket(t, h, "user-1")
	ref := *ticket.AnnouncementRef

	done := make(chan error, 1)
	go func() {
		done <- h.verification.HandleModeratorAction(ctx, "mod-1", domain.ActionDecline, ref)
	}()

	if !waitFor(3*time.Second, func() bool {
		return h.gw.countBodies(reviewChannel, "What's the reason for declining?") >= 1
	}) {
		t.Fatal("reason prompt never appeared")
	}

	err := h.verification.HandleModeratorAction(ctx, "mod-2", domain.ActionDecline, ref)
	if !apperrors.HasCode(err, "SESSION_CONFLICT") {
		t.Fatalf("second decline = %v, want SESSION_CONFLICT", err)
	}
	named := false
	for _, msg := range h.gw.sentTo(reviewChannel) {
		if strings.Contains(msg.content.Body, "already being handled by mod-1") {
			named = true
		}
	}
	if !named {
		t.Error("conflict notice does not name the first moderator")
	}

	h.gw.queue(reviewChannel, reply(reviewChannel, "mod-1", "duplicate account"))
	if err := <-done; err != nil {
		t.Fatalf("first decline = %v", err)
	}

	if got := h.gw.countBodies(reviewChannel, "What's the reason for declining?"); got != 1 {
		t.Errorf("reason prompts = %d, want 1", got)
	}
	stored := h.repo.stored(ticket.ID)
	if stored.State != domain.TicketStateDeclined {
		t.Errorf("state = %s, want %s", stored.State, domain.TicketStateDeclined)
	}
	if stored.DeclineReason == nil || *stored.DeclineReason != "duplicate account" {
		t.Errorf("reason = %v, want %q", stored.DeclineReason, "duplicate account")
	}
	if !sessionFree(h, "decline:"+ref) {
		t.Error("decline lock still held after a recorded decision")
	}
}

func TestDeclineReasonTimeoutKeepsTicketPending(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, 100*time.Millisecond)
	ctx := context.Background()
	ticket := announcedTicket(t, h, "user-1")
	ref := *ticket.AnnouncementRef

	err := h.verification.HandleModeratorAction(ctx, "mod-1", domain.ActionDecline, ref)
	if !apperrors.HasCode(err, "TIMEOUT") {
		t.Fatalf("decline = %v, want TIMEOUT", err)
	}
	if h.gw.countBodies(reviewChannel, "You didn't respond in time, so the decline was abandoned.") != 1 {
		t.Error("abandonment notice not delivered")
	}
	if got := h.repo.stored(ticket.ID).State; got != domain.TicketStatePending {
		t.Errorf("state = %s, want %s", got, domain.TicketStatePending)
	}
	if !sessionFree(h, "decline:"+ref) {
		t.Error("decline lock still held after timeout")
	}

	// Another moderator can decline immediately afterwards.
	h.gw.queue(reviewChannel, reply(reviewChannel, "mod-2", "no response"))
	if err := h.verification.HandleModeratorAction(ctx, "mod-2", domain.ActionDecline, ref); err != nil {
		t.Fatalf("retry decline = %v", err)
	}
	if got := h.repo.stored(ticket.ID).State; got != domain.TicketStateDeclined {
		t.Errorf("state after retry = %s, want %s", got, domain.TicketStateDeclined)
	}
}

func TestDeclineReasonCancel(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()
	ticket := announcedTicket(t, h, "user-1")
	ref := *ticket.AnnouncementRef

	h.gw.queue(reviewChannel, reply(reviewChannel, "mod-1", "cancel"))
	err := h.verification.HandleModeratorAction(ctx, "mod-1", domain.ActionDecline, ref)
	if !apperrors.HasCode(err, "CANCELLED") {
		t.Fatalf("decline = %v, want CANCELLED", err)
	}
	if got := h.repo.stored(ticket.ID).State; got != domain.TicketStatePending {
		t.Errorf("state = %s, want %s", got, domain.TicketStatePending)
	}
}

func TestDecisionUnknownReference(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)

	err := h.verification.HandleModeratorAction(context.Background(), "mod-1", domain.ActionAccept, "never-posted")
	if !apperrors.HasCode(err, "NOT_FOUND") {
		t.Fatalf("decision = %v, want NOT_FOUND", err)
	}
	if h.gw.countBodies(reviewChannel, "Could not find a ticket for that message.") != 1 {
		t.Error("moderator was not told the ticket is missing")
	}
}

func TestStaleSnapshotCannotOverwriteDecision(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()
	ticket := announcedTicket(t, h, "user-1")
	ref := *ticket.AnnouncementRef

	// Second moderator fetches the ticket while it is still Pending.
	stale, err := h.tickets.GetByAnnouncementRef(ctx, ref)
	if err != nil {
		t.Fatalf("GetByAnnouncementRef: %v", err)
	}

	h.gw.queue(reviewChannel, reply(reviewChannel, "mod-1", "duplicate account"))
	if err := h.verification.HandleModeratorAction(ctx, "mod-1", domain.ActionDecline, ref); err != nil {
		t.Fatalf("decline: %v", err)
	}

	err = h.tickets.Accept(ctx, stale, "mod-2")
	if !apperrors.HasCode(err, "INVALID_TRANSITION") {
		t.Fatalf("Accept on stale snapshot = %v, want INVALID_TRANSITION", err)
	}
	stored := h.repo.stored(ticket.ID)
	if stored.State != domain.TicketStateDeclined {
		t.Errorf("state = %s, want the recorded %s", stored.State, domain.TicketStateDeclined)
	}
	if stored.DecidedBy == nil || *stored.DecidedBy != "mod-1" {
		t.Errorf("decided_by = %v, want mod-1", stored.DecidedBy)
	}
	if stale.State != domain.TicketStatePending {
		t.Errorf("stale snapshot mutated to %s", stale.State)
	}
}

func TestDecisionOnResolvedTicket(t *testing.T) {
	h := newHarness(testQuestions(), time.Second, time.Second)
	ctx := context.Background()
	ticket := announcedTicket(t, h, "user-1")
	ref := *ticket.AnnouncementRef

	if err := h.verification.HandleModeratorAction(ctx, "mod-1", domain.ActionAccept, ref); err != nil {
		t.Fatalf("first decision: %v", err)
	}

	err := h.verification.HandleModeratorAction(ctx, "mod-2", domain.ActionDecline, ref)
	if !apperrors.HasCode(err, "NOT_FOUND") {
		t.Fatalf("second decision = %v, want NOT_FOUND for a stale reference", err)
	}
	if got := h.repo.stored(ticket.ID).State; got != domain.TicketStateAccepted {
		t.Errorf("state = %s, want the original %s", got, domain.TicketStateAccepted)
	}
}
