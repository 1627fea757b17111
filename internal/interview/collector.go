package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/gateway"
)

var (
	// ErrTimedOut reports that no qualifying reply arrived in time.
	ErrTimedOut = errors.New("timed out waiting for a reply")
	// ErrCancelled reports an explicit cancel reply.
	ErrCancelled = errors.New("cancelled by participant")
)

const cancelToken = "cancel"

// Collector waits for a single qualifying reply on a channel within a
// deadline. It sends nothing itself; callers prompt.
type Collector struct {
	gateway gateway.Gateway
}

// NewCollector constructs a collector over the gateway.
func NewCollector(gw gateway.Gateway) *Collector {
	return &Collector{gateway: gw}
}

// Await blocks until exactly one message passing filter arrives on the
// channel or timeout elapses. A reply whose trimmed text equals
// "cancel" (case-insensitive) yields ErrCancelled. The timeout is
// explicit at every call site, never implicit.
func (c *Collector) Await(ctx context.Context, channelID string, filter gateway.MessageFilter, timeout time.Duration) (domain.Answer, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := c.gateway.AwaitMessage(waitCtx, channelID, filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Answer{}, ErrTimedOut
		}
		return domain.Answer{}, err
	}
	if strings.EqualFold(strings.TrimSpace(msg.Content), cancelToken) {
		return domain.Answer{}, ErrCancelled
	}
	return domain.Answer{Text: msg.Content, Attachments: msg.Attachments}, nil
}
