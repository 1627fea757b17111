package dto

// StartVerificationRequest is the payload for a requester starting
// verification.
type StartVerificationRequest struct {
	RequesterID string `json:"requester_id"`
	ChannelID   string `json:"channel_id"`
}

// ModeratorDecisionRequest is the payload for a moderator acting on an
// announced ticket.
type ModeratorDecisionRequest struct {
	ModeratorID     string `json:"moderator_id"`
	Action          string `json:"action"`
	AnnouncementRef string `json:"announcement_ref"`
}

// EventAcceptedResponse acknowledges a dispatched flow.
type EventAcceptedResponse struct {
	Status string `json:"status"`
}
