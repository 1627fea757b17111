package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/verification-service/internal/config"
)

// HTTPClient implements Gateway against the messaging gateway sidecar's
// HTTP API. The sidecar owns the chat platform connection; this client
// only moves structured payloads across the boundary.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a gateway client from configuration.
func NewHTTPClient(cfg config.GatewayConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.RequestTimeout()},
		logger:  logger,
	}
}

type sendMessageRequest struct {
	Content Content `json:"content"`
}

type sendMessageResponse struct {
	Ref string `json:"ref"`
}

type openChannelResponse struct {
	ChannelID string `json:"channel_id"`
}

type gatewayErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendMessage delivers content to a channel.
func (c *HTTPClient) SendMessage(ctx context.Context, channelID string, content Content) (string, error) {
	var resp sendMessageResponse
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	if err := c.post(ctx, path, sendMessageRequest{Content: content}, &resp); err != nil {
		return "", err
	}
	return resp.Ref, nil
}

// AwaitMessage long-polls the sidecar for the next message on the
// channel, applying filter locally, until ctx is done.
func (c *HTTPClient) AwaitMessage(ctx context.Context, channelID string, filter MessageFilter) (Message, error) {
	path := fmt.Sprintf("/channels/%s/messages/next", url.PathEscape(channelID))
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		var msg Message
		err := c.get(ctx, path, &msg)
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			// Poll timeouts from the sidecar are expected between
			// messages.
			c.logger.Debug("await poll retry", zap.String("channel_id", channelID), zap.Error(err))
			select {
			case <-ctx.Done():
				return Message{}, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if msg.Ref == "" {
			// Empty 200 bodies are the sidecar's poll timeout;
			// pace them like transport errors.
			select {
			case <-ctx.Done():
				return Message{}, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if filter == nil || filter(msg) {
			return msg, nil
		}
	}
}

// OpenPrivateChannel resolves a direct channel to the user.
func (c *HTTPClient) OpenPrivateChannel(ctx context.Context, userID string) (string, error) {
	var resp openChannelResponse
	path := fmt.Sprintf("/users/%s/channels", url.PathEscape(userID))
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.ChannelID, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		var gatewayErr gatewayErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &gatewayErr)
		if gatewayErr.Error.Code == "recipient_unreachable" {
			return ErrRecipientUnreachable
		}
		return fmt.Errorf("gateway %s %s: status %d code %s", req.Method, req.URL.Path, resp.StatusCode, gatewayErr.Error.Code)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
