package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/gateway"
)

type sentMessage struct {
	channelID string
	content   gateway.Content
}

// fakeGateway serves queued inbound messages per channel and records
// everything sent. An empty queue blocks AwaitMessage until the context
// expires, like a silent participant.
type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	queues  map[string][]gateway.Message
	sendErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{queues: make(map[string][]gateway.Message)}
}

func (g *fakeGateway) queue(channelID string, msgs ...gateway.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queues[channelID] = append(g.queues[channelID], msgs...)
}

func (g *fakeGateway) SendMessage(_ context.Context, channelID string, content gateway.Content) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return "", g.sendErr
	}
	g.sent = append(g.sent, sentMessage{channelID: channelID, content: content})
	return "ref-1", nil
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

func TestAwaitReturnsQualifyingAnswer(t *testing.T) {
	gw := newFakeGateway()
	gw.queue("dm-1",
		gateway.Message{Ref: "m1", ChannelID: "dm-1", AuthorID: "someone-else", Content: "not for you"},
		gateway.Message{Ref: "m2", ChannelID: "dm-1", AuthorID: "user-1", Content: "my answer", Attachments: []domain.AttachmentRef{{URL: "https://cdn.example/a.png"}}},
	)
	collector := NewCollector(gw)

	answer, err := collector.Await(context.Background(), "dm-1", gateway.FromAuthor("user-1"), time.Second)
	if err != nil {
		t.Fatalf("expected answer, got %v", err)
	}
	if answer.Text != "my answer" {
		t.Fatalf("expected text %q, got %q", "my answer", answer.Text)
	}
	if len(answer.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(answer.Attachments))
	}
}

func TestAwaitCancelTokenShortCircuits(t *testing.T) {
	for _, content := range []string{"cancel", "CANCEL", "  Cancel  ", "\tcAnCeL\n"} {
		gw := newFakeGateway()
		gw.queue("dm-1", gateway.Message{Ref: "m1", ChannelID: "dm-1", AuthorID: "user-1", Content: content})
		collector := NewCollector(gw)

		_, err := collector.Await(context.Background(), "dm-1", gateway.FromAuthor("user-1"), time.Second)
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("content %q: expected ErrCancelled, got %v", content, err)
		}
	}
}

func TestAwaitCancelEmbeddedInTextIsAnAnswer(t *testing.T) {
	gw := newFakeGateway()
	gw.queue("dm-1", gateway.Message{Ref: "m1", ChannelID: "dm-1", AuthorID: "user-1", Content: "I want to cancel my subscription"})
	collector := NewCollector(gw)

	answer, err := collector.Await(context.Background(), "dm-1", gateway.FromAuthor("user-1"), time.Second)
	if err != nil {
		t.Fatalf("expected answer, got %v", err)
	}
	if answer.Text == "" {
		t.Fatal("expected the reply to be captured as an answer")
	}
}

func TestAwaitTimesOutWithoutReply(t *testing.T) {
	gw := newFakeGateway()
	collector := NewCollector(gw)

	start := time.Now()
	_, err := collector.Await(context.Background(), "dm-1", gateway.FromAuthor("user-1"), 20*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestAwaitSendsNothing(t *testing.T) {
	gw := newFakeGateway()
	gw.queue("dm-1", gateway.Message{Ref: "m1", ChannelID: "dm-1", AuthorID: "user-1", Content: "hi"})
	collector := NewCollector(gw)

	if _, err := collector.Await(context.Background(), "dm-1", gateway.FromAuthor("user-1"), time.Second); err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if len(gw.sent) != 0 {
		t.Fatalf("collector must not send messages, sent %d", len(gw.sent))
	}
}
