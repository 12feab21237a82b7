package model

import "time"

// Event kinds produced by parsing a webhook delivery.
const (
	KindMessage = "message"
	KindOther   = "other"
)

// Message types carried by message events.
const (
	MessageText    = "text"
	MessageImage   = "image"
	MessageSticker = "sticker"
	MessageOther   = "other"
)

// Event is one entry of a webhook delivery.
// Only message events carry a reply token and a message type.
type Event struct {
	Kind           string
	MessageType    string
	ReplyToken     string
	Text           string
	WebhookEventID string
	Redelivery     bool
}

// IsTextMessage reports whether the event should be answered with a search reply.
func (e Event) IsTextMessage() bool {
	return e.Kind == KindMessage && e.MessageType == MessageText
}

// Outcome statuses recorded for every event of a delivery.
const (
	StatusReplied   = "replied"
	StatusNoResults = "no_results"
	StatusFailed    = "failed"
	StatusDuplicate = "duplicate"
	StatusSkipped   = "skipped"
)

// ReplyOutcome is the per-event record published to the outcome topic
// and appended to the audit log by the consumer.
type ReplyOutcome struct {
	WebhookEventID string `json:"webhook_event_id"`
	Keyword        string `json:"keyword,omitempty"`
	Status         string `json:"status"`
	Items          int    `json:"items"`
	Error          string `json:"error,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NewOutcome stamps an outcome with the current UTC time.
func NewOutcome(ev Event, status string) ReplyOutcome {
	return ReplyOutcome{
		WebhookEventID: ev.WebhookEventID,
		Keyword:        ev.Text,
		Status:         status,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
	}
}
