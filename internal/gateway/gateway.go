package gateway

import (
	"context"
	"errors"

	"github.com/spec-kit/verification-service/internal/domain"
)

// ErrRecipientUnreachable is the platform's "cannot DM this user"
// condition surfaced by OpenPrivateChannel.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// Message is an inbound chat message observed on a channel.
type Message struct {
	Ref         string                 `json:"ref"`
	ChannelID   string                 `json:"channel_id"`
	AuthorID    string                 `json:"author_id"`
	Content     string                 `json:"content"`
	Attachments []domain.AttachmentRef `json:"attachments,omitempty"`
}

// MessageFilter decides whether an inbound message qualifies.
type MessageFilter func(Message) bool

// FromAuthor matches messages written by the given participant.
func FromAuthor(authorID string) MessageFilter {
	return func(m Message) bool {
		return m.AuthorID == authorID
	}
}

// Tone hints how the gateway side should render a message.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

// ContentField is one labeled value in a structured message.
type ContentField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Content is the structured payload for an outbound message. The core
// supplies structured data only; rendering belongs to the gateway side.
type Content struct {
	Title  string         `json:"title,omitempty"`
	Body   string         `json:"body"`
	Footer string         `json:"footer,omitempty"`
	Tone   Tone           `json:"tone,omitempty"`
	Fields []ContentField `json:"fields,omitempty"`
}

// Gateway is the messaging collaborator consumed by the verification
// core. Implementations must honor context deadlines on AwaitMessage.
type Gateway interface {
	// SendMessage delivers content to a channel and returns the
	// reference of the posted message.
	SendMessage(ctx context.Context, channelID string, content Content) (string, error)
	// AwaitMessage blocks until one message passing filter arrives on
	// the channel or ctx is done.
	AwaitMessage(ctx context.Context, channelID string, filter MessageFilter) (Message, error)
	// OpenPrivateChannel resolves a direct channel to the user,
	// returning ErrRecipientUnreachable when the platform refuses.
	OpenPrivateChannel(ctx context.Context, userID string) (string, error)
}
