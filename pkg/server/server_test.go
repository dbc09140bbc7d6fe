package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/homepanel/homepanel/pkg/alerts"
	"github.com/homepanel/homepanel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	sources []string
	alerts  []types.Alert
	err     error
}

func (s *recordingSink) Notify(ctx context.Context, source string, alert types.Alert) error {
	if s.err != nil {
		return s.err
	}
	s.sources = append(s.sources, source)
	s.alerts = append(s.alerts, alert)
	return nil
}

func post(t *testing.T, h http.Handler, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := New(":0", &recordingSink{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := New(":0", &recordingSink{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAlertWebhook(t *testing.T) {
	sink := &recordingSink{}
	h := New(":0", sink, WithHookToken("s3cret")).Handler()

	rec := post(t, h, `{"kind":"torrent_complete","title":"Done","message":"debian.iso"}`, "s3cret")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, []string{HookSource}, sink.sources)
	assert.Equal(t, types.AlertTorrentComplete, sink.alerts[0].Kind)
	assert.Equal(t, "debian.iso", sink.alerts[0].Message)
}

func TestAlertWebhook_Token(t *testing.T) {
	sink := &recordingSink{}
	h := New(":0", sink, WithHookToken("s3cret")).Handler()

	assert.Equal(t, http.StatusUnauthorized, post(t, h, `{"message":"x"}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h, `{"message":"x"}`, "wrong").Code)
	assert.Empty(t, sink.alerts)

	open := New(":0", sink).Handler()
	assert.Equal(t, http.StatusAccepted, post(t, open, `{"message":"x"}`, "").Code)
}

func TestAlertWebhook_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{name: "malformed", body: `{"kind":`, code: http.StatusBadRequest},
		{name: "unknown kind", body: `{"message":"x"}`, err: alerts.ErrUnknownKind, code: http.StatusBadRequest},
		{name: "rate limited", body: `{"message":"x"}`, err: alerts.ErrRateLimited, code: http.StatusTooManyRequests},
		{name: "send failed", body: `{"message":"x"}`, err: assert.AnError, code: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(":0", &recordingSink{err: tt.err}).Handler()
			assert.Equal(t, tt.code, post(t, h, tt.body, "").Code)
		})
	}
}

func TestAlertWebhook_WithNotifier(t *testing.T) {
	sender := &captureSender{}
	h := New(":0", alerts.NewNotifier(sender, 7)).Handler()

	rec := post(t, h, `{"kind":"bogus","message":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, `{"kind":"generic","message":"backup finished"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sender.replies, 1)
	assert.Equal(t, int64(7), sender.replies[0].ChatID)
	assert.Contains(t, sender.replies[0].Text, "backup finished")
}

type captureSender struct {
	replies []types.Reply
}

func (s *captureSender) Send(ctx context.Context, reply types.Reply) error {
	s.replies = append(s.replies, reply)
	return nil
}
