// Package line talks to the LINE Messaging platform: it checks webhook
// signatures, decodes webhook deliveries and sends replies.
package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"shopbot/internal/model"
	"shopbot/internal/reply"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the body.
const SignatureHeader = "X-Line-Signature"

// ErrReply wraps every failed reply call.
var ErrReply = errors.New("line: reply failed")

// Client is safe for concurrent use.
type Client struct {
	channelSecret string
	channelToken  string
	endpoint      string
	httpClient    *http.Client
}

// Config holds the channel credentials and API endpoint.
type Config struct {
	ChannelSecret string
	ChannelToken  string
	Endpoint      string
	Timeout       time.Duration
}

// NewClient creates a messaging client. Endpoint defaults to the public API.
func NewClient(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.line.me"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		channelSecret: cfg.ChannelSecret,
		channelToken:  cfg.ChannelToken,
		endpoint:      endpoint,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// ValidateSignature reports whether signature matches body under the
// channel secret. An empty signature never matches.
func (c *Client) ValidateSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return webhook.ValidateSignature(c.channelSecret, signature, body)
}

// ParseEvents decodes a webhook delivery, keeping the event order.
func (c *Client) ParseEvents(body []byte) ([]model.Event, error) {
	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}

	events := make([]model.Event, 0, len(cb.Events))
	for _, e := range cb.Events {
		events = append(events, toEvent(e))
	}
	return events, nil
}

func toEvent(e webhook.EventInterface) model.Event {
	switch ev := e.(type) {
	case webhook.MessageEvent:
		return messageEvent(ev)
	case *webhook.MessageEvent:
		return messageEvent(*ev)
	default:
		return model.Event{Kind: model.KindOther}
	}
}

func messageEvent(ev webhook.MessageEvent) model.Event {
	out := model.Event{
		Kind:           model.KindMessage,
		MessageType:    model.MessageOther,
		ReplyToken:     ev.ReplyToken,
		WebhookEventID: ev.WebhookEventId,
	}
	if ev.DeliveryContext != nil {
		out.Redelivery = ev.DeliveryContext.IsRedelivery
	}

	switch m := ev.Message.(type) {
	case webhook.TextMessageContent:
		out.MessageType = model.MessageText
		out.Text = m.Text
	case *webhook.TextMessageContent:
		out.MessageType = model.MessageText
		out.Text = m.Text
	case webhook.ImageMessageContent, *webhook.ImageMessageContent:
		out.MessageType = model.MessageImage
	case webhook.StickerMessageContent, *webhook.StickerMessageContent:
		out.MessageType = model.MessageSticker
	}
	return out
}

// Reply sends messages bound to replyToken through the Messaging API.
// The SDK client keeps its context on the struct, so one is built per call.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...reply.Message) error {
	api, err := messaging_api.NewMessagingApiAPI(c.channelToken,
		messaging_api.WithEndpoint(c.endpoint),
		messaging_api.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return fmt.Errorf("create messaging client: %w", err)
	}

	msgs := make([]messaging_api.MessageInterface, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, m)
	}

	if _, err := api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrReply, err)
	}
	return nil
}
