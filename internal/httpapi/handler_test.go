package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/line"
	"shopbot/internal/model"
	"shopbot/internal/paapi"
	"shopbot/internal/processing"
	"shopbot/internal/reply"
	"shopbot/internal/shortener"
)

// --- stubs for unit tests ---

type sentReply struct {
	token    string
	messages []reply.Message
}

type stubMessenger struct {
	valid    bool
	events   []model.Event
	parseErr error
	replyErr error

	mu            sync.Mutex
	validateCalls int
	parseCalls    int
	replies       []sentReply
}

func (s *stubMessenger) ValidateSignature(_ []byte, _ string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validateCalls++
	return s.valid
}

func (s *stubMessenger) ParseEvents(_ []byte) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parseCalls++
	return s.events, s.parseErr
}

func (s *stubMessenger) Reply(_ context.Context, token string, messages ...reply.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replyErr != nil {
		return s.replyErr
	}
	s.replies = append(s.replies, sentReply{token: token, messages: messages})
	return nil
}

type stubBuilder struct {
	errs    map[string]error
	empty   map[string]bool
	panicOn string

	mu    sync.Mutex
	calls []string
}

func (s *stubBuilder) SearchAndBuildReply(_ context.Context, keyword string) (processing.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, keyword)
	s.mu.Unlock()

	if keyword == s.panicOn {
		panic("boom")
	}
	if err := s.errs[keyword]; err != nil {
		return processing.Result{}, err
	}
	if s.empty[keyword] {
		return processing.Result{Message: reply.NoResults(keyword)}, nil
	}
	return processing.Result{Message: reply.BuildCarousel(nil), Items: 3}, nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []model.ReplyOutcome
	err error
}

func (r *recordingPublisher) PublishOutcome(_ context.Context, out model.ReplyOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, out)
	return r.err
}

func textEvent(id, text string) model.Event {
	return model.Event{
		Kind:           model.KindMessage,
		MessageType:    model.MessageText,
		ReplyToken:     "token-" + id,
		Text:           text,
		WebhookEventID: id,
	}
}

func newTestHandler(m Messenger, b ReplyBuilder, p OutcomePublisher) *Handler {
	return NewHandler(Config{Messenger: m, Builder: b, Outcomes: p, Log: zerolog.Nop()})
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set(line.SignatureHeader, "sig")
	w := httptest.NewRecorder()
	h.HandleCallback(w, req)
	return w
}

// --- unit tests (stub-based) ---

func TestCallbackInvalidSignature(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: false, events: []model.Event{textEvent("a", "headphones")}}
	b := &stubBuilder{}
	h := newTestHandler(m, b, nil)

	w := post(h, `{"events":[]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, m.validateCalls)
	assert.Equal(t, 0, m.parseCalls)
	assert.Empty(t, b.calls)
	assert.Empty(t, m.replies)
}

func TestCallbackParseFailure(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true, parseErr: errors.New("unexpected end of JSON input")}
	b := &stubBuilder{}
	h := newTestHandler(m, b, nil)

	w := post(h, `{"events":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, b.calls)
}

func TestCallbackSkipsNonText(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true, events: []model.Event{
		{Kind: model.KindMessage, MessageType: model.MessageSticker, ReplyToken: "t1", WebhookEventID: "a"},
		{Kind: model.KindMessage, MessageType: model.MessageImage, ReplyToken: "t2", WebhookEventID: "b"},
		{Kind: model.KindOther, WebhookEventID: "c"},
	}}
	b := &stubBuilder{}
	h := newTestHandler(m, b, nil)

	status, outcomes, err := h.Callback(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, m.replies)
	assert.Empty(t, b.calls)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, model.StatusSkipped, o.Status)
	}
}

func TestCallbackRepliesOncePerTextEvent(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true, events: []model.Event{textEvent("a", "headphones")}}
	b := &stubBuilder{}
	pub := &recordingPublisher{}
	h := newTestHandler(m, b, pub)

	w := post(h, `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, m.replies, 1)
	assert.Equal(t, "token-a", m.replies[0].token)
	assert.Equal(t, []string{"headphones"}, b.calls)
	require.Len(t, pub.got, 1)
	assert.Equal(t, model.StatusReplied, pub.got[0].Status)
	assert.Equal(t, 3, pub.got[0].Items)
}

func TestCallbackIsolatesEventFailures(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true, events: []model.Event{
		textEvent("a", "broken"),
		textEvent("b", "explode"),
		textEvent("c", "zzzz"),
		textEvent("d", "headphones"),
	}}
	b := &stubBuilder{
		errs:    map[string]error{"broken": paapi.ErrRequest},
		empty:   map[string]bool{"zzzz": true},
		panicOn: "explode",
	}
	h := newTestHandler(m, b, nil)

	status, outcomes, err := h.Callback(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	require.Len(t, outcomes, 4)
	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "paapi")
	assert.Equal(t, model.StatusFailed, outcomes[1].Status)
	assert.Equal(t, "boom", outcomes[1].Error)
	assert.Equal(t, model.StatusNoResults, outcomes[2].Status)
	assert.Equal(t, model.StatusReplied, outcomes[3].Status)

	require.Len(t, m.replies, 2)
	assert.Equal(t, "token-c", m.replies[0].token)
	assert.Equal(t, reply.NoResults("zzzz"), m.replies[0].messages[0])
	assert.Equal(t, "token-d", m.replies[1].token)
}

func TestCallbackReplyFailure(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true, replyErr: line.ErrReply, events: []model.Event{
		textEvent("a", "headphones"),
		textEvent("b", "speakers"),
	}}
	h := newTestHandler(m, &stubBuilder{}, nil)

	status, outcomes, err := h.Callback(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, outcomes, 2)
	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	assert.Equal(t, model.StatusFailed, outcomes[1].Status)
}

func TestCallbackDeduplicatesRedelivery(t *testing.T) {
	t.Parallel()

	redelivered := textEvent("a", "headphones")
	redelivered.Redelivery = true
	m := &stubMessenger{valid: true, events: []model.Event{textEvent("a", "headphones"), redelivered}}
	b := &stubBuilder{}
	h := newTestHandler(m, b, nil)

	_, outcomes, err := h.Callback(context.Background(), nil, "sig")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, model.StatusDuplicate, outcomes[1].Status)

	_, outcomes, err = h.Callback(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDuplicate, outcomes[0].Status)

	assert.Len(t, m.replies, 1)
	assert.Len(t, b.calls, 1)
}

type failingStore struct{}

func (failingStore) MarkProcessed(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestCallbackDedupeUnavailable(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true, events: []model.Event{textEvent("a", "headphones")}}
	h := NewHandler(Config{Messenger: m, Builder: &stubBuilder{}, Dedupe: failingStore{}, Log: zerolog.Nop()})

	_, outcomes, err := h.Callback(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReplied, outcomes[0].Status)
	assert.Len(t, m.replies, 1)
}

func TestCallbackPublishFailureIgnored(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true, events: []model.Event{textEvent("a", "headphones")}}
	pub := &recordingPublisher{err: errors.New("broker down")}
	h := newTestHandler(m, &stubBuilder{}, pub)

	w := post(h, `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, m.replies, 1)
}

func TestHandleCallbackBodyTooLarge(t *testing.T) {
	t.Parallel()

	m := &stubMessenger{valid: true}
	h := NewHandler(Config{Messenger: m, Builder: &stubBuilder{}, MaxBodyBytes: 8, Log: zerolog.Nop()})

	w := post(h, `{"destination":"U0","events":[]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, m.validateCalls)
}

func TestNewHandlerPanicsOnNil(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewHandler(Config{Builder: &stubBuilder{}}) })
	assert.Panics(t, func() { NewHandler(Config{Messenger: &stubMessenger{}}) })
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "signature", err: errInvalidSignature, want: http.StatusBadRequest},
		{name: "body", err: fmt.Errorf("%w: eof", errBadBody), want: http.StatusBadRequest},
		{name: "too_large", err: fmt.Errorf("%w: %w", errBadBody, &http.MaxBytesError{Limit: 1}), want: http.StatusRequestEntityTooLarge},
		{name: "unknown", err: errors.New("unknown"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, httpStatus(tt.err))
		})
	}
}

// --- router tests ---

func TestRouter(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&stubMessenger{valid: true}, &stubBuilder{}, nil)
	srv := httptest.NewServer(NewRouter(h, zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp2, err := http.Get(srv.URL + "/callback")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestRequestLoggingKeepsIncomingID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	handler := RequestLogging(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, float64(http.StatusTeapot), rec["status"])
}

// --- integration test (real clients against fake upstreams) ---

type fixedSearcher struct{}

func (fixedSearcher) SearchItems(_ context.Context, req paapi.SearchRequest) ([]model.Item, error) {
	if req.BrowseNodeID == "" {
		return []model.Item{{ASIN: "B000", BrowseNodeIDs: []string{"3477981"}}}, nil
	}
	items := make([]model.Item, 4)
	for i := range items {
		items[i] = model.Item{
			ASIN:      fmt.Sprintf("B00%d", i+1),
			Title:     fmt.Sprintf("Headphones %d", i+1),
			ListPrice: "￥9,800",
			DetailURL: fmt.Sprintf("https://www.amazon.co.jp/dp/B00%d", i+1),
		}
	}
	return items, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const textDelivery = `{
  "destination": "U0000000000000000000000000000000",
  "events": [
    {
      "type": "message",
      "mode": "active",
      "timestamp": 1700000000000,
      "source": {"type": "user", "userId": "U1111111111111111111111111111111"},
      "webhookEventId": "01HEVT0000000000000000000A",
      "deliveryContext": {"isRedelivery": false},
      "replyToken": "reply-token-a",
      "message": {"id": "100", "type": "text", "quoteToken": "q", "text": "headphones"}
    }
  ]
}`

func TestWebhookEndToEnd(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		replies []map[string]json.RawMessage
	)
	lineAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]json.RawMessage
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		replies = append(replies, body)
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer lineAPI.Close()

	const secret = "channel-secret"
	client := line.NewClient(line.Config{ChannelSecret: secret, ChannelToken: "token", Endpoint: lineAPI.URL})
	svc := processing.NewService(fixedSearcher{}, shortener.Passthrough{}, zerolog.Nop())
	h := newTestHandler(client, svc, nil)
	srv := httptest.NewServer(NewRouter(h, zerolog.Nop()))
	defer srv.Close()

	send := func(signature string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(textDelivery))
		require.NoError(t, err)
		req.Header.Set(line.SignatureHeader, signature)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, send("forged"))
	assert.Equal(t, http.StatusBadRequest, send(""))
	assert.Equal(t, http.StatusOK, send(sign(secret, []byte(textDelivery))))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, replies, 1)

	var token string
	require.NoError(t, json.Unmarshal(replies[0]["replyToken"], &token))
	assert.Equal(t, "reply-token-a", token)

	var messages []struct {
		Type     string `json:"type"`
		Contents struct {
			Type     string            `json:"type"`
			Contents []json.RawMessage `json:"contents"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(replies[0]["messages"], &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "flex", messages[0].Type)
	assert.Equal(t, "carousel", messages[0].Contents.Type)
	assert.Len(t, messages[0].Contents.Contents, 3)
}
