package presenter

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/gateway"
)

// Presenter turns structured verification data into gateway payloads.
// The core services hand it ids, indexes, and reason text, never
// formatted strings.
type Presenter struct {
	gateway gateway.Gateway
}

// NewPresenter constructs the presenter over the gateway.
func NewPresenter(gw gateway.Gateway) *Presenter {
	return &Presenter{gateway: gw}
}

func (p *Presenter) send(ctx context.Context, channelID string, content gateway.Content) error {
	_, err := p.gateway.SendMessage(ctx, channelID, content)
	return err
}

// SendIntro opens an interview with the purpose statement the
// requester sees before question one.
func (p *Presenter) SendIntro(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body: "Before we can grant you access to the rest of the server, we need you to answer some questions. " +
			"The answers will not be used for any other purpose. Please answer honestly. Thanks!",
		Tone: gateway.ToneSuccess,
	})
}

// SendQuestion delivers one interview prompt, tagged with its 1-based
// index and the total count.
func (p *Presenter) SendQuestion(ctx context.Context, channelID string, index, total int, question string, timeout time.Duration) error {
	return p.send(ctx, channelID, gateway.Content{
		Title:  fmt.Sprintf("Question %d", index),
		Body:   question,
		Footer: fmt.Sprintf("Please respond within %d minutes | Say 'cancel' to exit | %d/%d", int(timeout.Minutes()), index, total),
		Tone:   gateway.ToneSuccess,
	})
}

// SendCheckDirectMessage acknowledges the start trigger in the channel
// the requester clicked in.
func (p *Presenter) SendCheckDirectMessage(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body: "Please check your direct messages!",
		Tone: gateway.ToneSuccess,
	})
}

// SendAlreadyInSession reports a duplicate interview attempt.
func (p *Presenter) SendAlreadyInSession(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body: "You are already in a verification session.",
		Tone: gateway.ToneError,
	})
}

// SendCannotMessage reports that no private channel could be opened.
func (p *Presenter) SendCannotMessage(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body: "We could not send you a direct message. Please allow direct messages and try again.",
		Tone: gateway.ToneError,
	})
}

// SendSubmissionConfirmation tells the requester the ticket was filed.
func (p *Presenter) SendSubmissionConfirmation(ctx context.Context, channelID, ticketID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Title:  "All done!",
		Body:   "Your verification request has been submitted. A moderator will review it shortly.",
		Footer: ticketID,
		Tone:   gateway.ToneSuccess,
	})
}

// SendSubmissionFailed tells the requester the ticket could not be
// filed.
func (p *Presenter) SendSubmissionFailed(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body: "Something went wrong while filing your verification request. Please try again later.",
		Tone: gateway.ToneError,
	})
}

// AnnounceTicket posts a ticket for moderator review and returns the
// reference of the posted message.
func (p *Presenter) AnnounceTicket(ctx context.Context, channelID string, ticket *domain.Ticket) (string, error) {
	fields := make([]gateway.ContentField, 0, len(ticket.Answers))
	for i, answer := range ticket.Answers {
		fields = append(fields, gateway.ContentField{
			Name:  fmt.Sprintf("Answer %d", i+1),
			Value: answer.Display(),
		})
	}
	return p.gateway.SendMessage(ctx, channelID, gateway.Content{
		Title:  "Verification request",
		Body:   fmt.Sprintf("Requester: %s", ticket.RequesterID),
		Footer: ticket.ID,
		Fields: fields,
	})
}

// SendTicketNotFound reports a stale or already-resolved reference.
func (p *Presenter) SendTicketNotFound(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body: "Could not find a ticket for that message.",
		Tone: gateway.ToneError,
	})
}

// SendDeclineInProgress names the moderator already collecting a
// decline reason for the ticket.
func (p *Presenter) SendDeclineInProgress(ctx context.Context, channelID, ticketID, holderID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body:   fmt.Sprintf("This ticket is already being handled by %s.", holderID),
		Footer: ticketID,
		Tone:   gateway.ToneError,
	})
}

// SendReasonPrompt asks the moderator for a free-text decline reason.
func (p *Presenter) SendReasonPrompt(ctx context.Context, channelID, ticketID string, window time.Duration) error {
	return p.send(ctx, channelID, gateway.Content{
		Body:   "What's the reason for declining?",
		Footer: fmt.Sprintf("%s | Respond within %d minutes | Say 'cancel' to exit", ticketID, int(window.Minutes())),
		Tone:   gateway.ToneSuccess,
	})
}

// SendReasonAbandoned reports that the reason prompt went unanswered.
func (p *Presenter) SendReasonAbandoned(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body: "You didn't respond in time, so the decline was abandoned.",
		Tone: gateway.ToneError,
	})
}

// SendDecisionDone confirms a completed moderator decision.
func (p *Presenter) SendDecisionDone(ctx context.Context, channelID, ticketID string, state domain.TicketState) error {
	verb := "accepted"
	if state == domain.TicketStateDeclined {
		verb = "declined"
	}
	return p.send(ctx, channelID, gateway.Content{
		Title: "All done!",
		Body:  fmt.Sprintf("Ticket %s has been %s!", ticketID, verb),
		Tone:  gateway.ToneSuccess,
	})
}

// SendDecisionFailed reports a decision that could not be completed.
func (p *Presenter) SendDecisionFailed(ctx context.Context, channelID, ticketID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Body:   "The decision could not be recorded. Please try again.",
		Footer: ticketID,
		Tone:   gateway.ToneError,
	})
}

// SendAcceptNotice tells the requester the verification was approved.
func (p *Presenter) SendAcceptNotice(ctx context.Context, channelID string) error {
	return p.send(ctx, channelID, gateway.Content{
		Title: "Welcome!",
		Body:  "Your verification request has been accepted.",
		Tone:  gateway.ToneSuccess,
	})
}

// SendDeclineNotice tells the requester the verification was declined,
// with the moderator's reason.
func (p *Presenter) SendDeclineNotice(ctx context.Context, channelID, moderatorID, reason string) error {
	return p.send(ctx, channelID, gateway.Content{
		Title: "Sorry!",
		Body:  fmt.Sprintf("Your verification request has been declined by %s\nReason: %s", moderatorID, reason),
		Tone:  gateway.ToneError,
	})
}
