package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketAnnounced  EventType = "ticket_announced"
	EventTicketAccepted   EventType = "ticket_accepted"
	EventTicketDeclined   EventType = "ticket_declined"
	EventInterviewAborted EventType = "interview_aborted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	RequesterID string `json:"requester_id"`
	AnswerCount int    `json:"answer_count"`
}

// TicketAnnouncedPayload payload.
type TicketAnnouncedPayload struct {
	AnnouncementRef string `json:"announcement_ref"`
}

// TicketAcceptedPayload payload.
type TicketAcceptedPayload struct {
	RequesterID string `json:"requester_id"`
	ModeratorID string `json:"moderator_id"`
}

// TicketDeclinedPayload payload.
type TicketDeclinedPayload struct {
	RequesterID string `json:"requester_id"`
	ModeratorID string `json:"moderator_id"`
	Reason      string `json:"reason"`
}

// InterviewAbortedPayload payload.
type InterviewAbortedPayload struct {
	RequesterID string `json:"requester_id"`
	AbortReason string `json:"abort_reason"`
	Question    int    `json:"question"`
}
