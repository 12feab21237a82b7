package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"shopbot/internal/dedupe"
	"shopbot/internal/line"
	"shopbot/internal/model"
	"shopbot/internal/processing"
	"shopbot/internal/reply"
)

// Messenger is satisfied by *line.Client.
type Messenger interface {
	ValidateSignature(body []byte, signature string) bool
	ParseEvents(body []byte) ([]model.Event, error)
	Reply(ctx context.Context, replyToken string, messages ...reply.Message) error
}

// ReplyBuilder is satisfied by *processing.Service.
type ReplyBuilder interface {
	SearchAndBuildReply(ctx context.Context, keyword string) (processing.Result, error)
}

// OutcomePublisher is satisfied by the kstream producers.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, out model.ReplyOutcome) error
}

// Config bundles the handler's collaborators and limits.
type Config struct {
	Messenger Messenger
	Builder   ReplyBuilder
	Dedupe    dedupe.Store
	Outcomes  OutcomePublisher
	Log       zerolog.Logger

	DedupeTTL      time.Duration
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// Handler serves the LINE webhook.
type Handler struct {
	messenger      Messenger
	builder        ReplyBuilder
	dedupe         dedupe.Store
	outcomes       OutcomePublisher
	log            zerolog.Logger
	dedupeTTL      time.Duration
	maxBodyBytes   int64
	requestTimeout time.Duration
}

// NewHandler panics if Messenger or Builder is nil. A nil Dedupe gets an
// in-memory store and nil Outcomes are dropped.
func NewHandler(cfg Config) *Handler {
	if cfg.Messenger == nil || cfg.Builder == nil {
		panic("httpapi.NewHandler: nil messenger or builder")
	}
	h := &Handler{
		messenger:      cfg.Messenger,
		builder:        cfg.Builder,
		dedupe:         cfg.Dedupe,
		outcomes:       cfg.Outcomes,
		log:            cfg.Log,
		dedupeTTL:      cfg.DedupeTTL,
		maxBodyBytes:   cfg.MaxBodyBytes,
		requestTimeout: cfg.RequestTimeout,
	}
	if h.dedupe == nil {
		h.dedupe = dedupe.NewMemoryStore()
	}
	if h.dedupeTTL <= 0 {
		h.dedupeTTL = 24 * time.Hour
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = 1 << 20
	}
	if h.requestTimeout <= 0 {
		h.requestTimeout = 25 * time.Second
	}
	return h
}

// HandleCallback is the POST /callback endpoint.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadBody, err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	status, outcomes, err := h.Callback(ctx, body, r.Header.Get(line.SignatureHeader))
	if err != nil {
		h.log.Warn().Err(err).Int("status", status).Msg("webhook rejected")
		writeError(w, err)
		return
	}

	counts := zerolog.Dict()
	for s, n := range countStatuses(outcomes) {
		counts.Int(s, n)
	}
	h.log.Info().Int("events", len(outcomes)).Dict("outcomes", counts).Msg("webhook handled")

	writeJSON(w, http.StatusOK, struct{}{})
}

// Callback validates and handles one delivery. Once the signature checks
// out the status is always 200, whatever happens to individual events.
// outcomes has one entry per parsed event, in delivery order.
func (h *Handler) Callback(ctx context.Context, body []byte, signature string) (int, []model.ReplyOutcome, error) {
	if !h.messenger.ValidateSignature(body, signature) {
		return http.StatusBadRequest, nil, errInvalidSignature
	}

	events, err := h.messenger.ParseEvents(body)
	if err != nil {
		return http.StatusBadRequest, nil, fmt.Errorf("%w: %w", errBadBody, err)
	}

	outcomes := make([]model.ReplyOutcome, 0, len(events))
	for _, ev := range events {
		out := h.handleEvent(ctx, ev)
		if err := h.publish(ctx, out); err != nil {
			h.log.Warn().Err(err).Str("webhook_event_id", out.WebhookEventID).Msg("publish outcome failed")
		}
		outcomes = append(outcomes, out)
	}
	return http.StatusOK, outcomes, nil
}

// handleEvent answers a single event. Failures are contained here so the
// rest of the delivery still gets processed.
func (h *Handler) handleEvent(ctx context.Context, ev model.Event) (out model.ReplyOutcome) {
	if !ev.IsTextMessage() {
		return model.NewOutcome(ev, model.StatusSkipped)
	}

	log := h.log.With().Str("webhook_event_id", ev.WebhookEventID).Str("keyword", ev.Text).Logger()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("event handling panicked")
			out = model.NewOutcome(ev, model.StatusFailed)
			out.Error = fmt.Sprint(p)
		}
	}()

	fresh, err := h.dedupe.MarkProcessed(ctx, ev.WebhookEventID, h.dedupeTTL)
	if err != nil {
		log.Warn().Err(err).Msg("dedupe unavailable, handling event anyway")
		fresh = true
	}
	if !fresh {
		log.Info().Bool("redelivery", ev.Redelivery).Msg("duplicate event skipped")
		return model.NewOutcome(ev, model.StatusDuplicate)
	}

	res, err := h.builder.SearchAndBuildReply(ctx, ev.Text)
	if err != nil {
		log.Error().Err(err).Msg("search failed")
		return failed(ev, err)
	}

	if err := h.messenger.Reply(ctx, ev.ReplyToken, res.Message); err != nil {
		log.Error().Err(err).Msg("reply failed")
		return failed(ev, err)
	}

	status := model.StatusReplied
	if res.Items == 0 {
		status = model.StatusNoResults
	}
	out = model.NewOutcome(ev, status)
	out.Items = res.Items
	log.Debug().Str("status", status).Int("items", res.Items).Msg("replied")
	return out
}

func (h *Handler) publish(ctx context.Context, out model.ReplyOutcome) error {
	if h.outcomes == nil {
		return nil
	}
	return h.outcomes.PublishOutcome(ctx, out)
}

func failed(ev model.Event, err error) model.ReplyOutcome {
	out := model.NewOutcome(ev, model.StatusFailed)
	out.Error = err.Error()
	return out
}

func countStatuses(outcomes []model.ReplyOutcome) map[string]int {
	counts := make(map[string]int)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	return counts
}

var (
	errInvalidSignature = errors.New("invalid signature")
	errBadBody          = errors.New("invalid webhook body")
)
