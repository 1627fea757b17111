package domain

import "time"

// TicketState enumerates lifecycle states for verification tickets.
type TicketState string

const (
	TicketStatePending  TicketState = "PENDING"
	TicketStateAccepted TicketState = "ACCEPTED"
	TicketStateDeclined TicketState = "DECLINED"
)

// Terminal reports whether no further transition may leave the state.
func (s TicketState) Terminal() bool {
	return s == TicketStateAccepted || s == TicketStateDeclined
}

// Ticket is the aggregate for one verification request.
type Ticket struct {
	ID          string
	RequesterID string
	// AnnouncementRef is nil until the ticket has been posted for
	// moderator review.
	AnnouncementRef *string
	Answers         []Answer
	State           TicketState
	DeclineReason   *string
	DecidedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DecidedAt       *time.Time
}

// Announced reports whether the ticket has a review posting moderators
// can act on.
func (t *Ticket) Announced() bool {
	return t.AnnouncementRef != nil && *t.AnnouncementRef != ""
}
