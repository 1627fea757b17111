package domain

// ModeratorAction is a decision taken on an announced ticket.
type ModeratorAction string

const (
	ActionAccept  ModeratorAction = "ACCEPT"
	ActionDecline ModeratorAction = "DECLINE"
)

// Valid reports whether the action is a known decision.
func (a ModeratorAction) Valid() bool {
	return a == ActionAccept || a == ActionDecline
}
