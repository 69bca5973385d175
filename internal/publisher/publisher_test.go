package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gelarm/gims-automation-mcp-server/internal/auth"
	"github.com/gelarm/gims-automation-mcp-server/internal/logstream"
	"github.com/gelarm/gims-automation-mcp-server/pkg/model"
)

type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream", Sequence: uint64(len(m.published))}, nil
}

func newTestPublisher(fail bool) (*Publisher, *mockJetStream) {
	js := &mockJetStream{fail: fail}
	return &Publisher{js: js, subject: "evt.gims.mcp", service: "gims-mcp-server"}, js
}

func decodeEnvelope(t *testing.T, msg *nats.Msg, payload any) model.Envelope {
	t.Helper()
	var env model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	require.NoError(t, json.Unmarshal(env.Payload, payload))
	return env
}

// ─── Envelopes ────────────────────────────────────────────────────────────────

func TestPublishTokenRefreshed(t *testing.T) {
	pub, js := newTestPublisher(false)

	err := pub.PublishTokenRefreshed(context.Background(), "https://gims.example.com",
		auth.Credentials{AccessToken: "eyJhbGciOiJIUzI1NiJ9.access", RefreshToken: "r"}, true, 250*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "evt.gims.mcp.token.refreshed", msg.Subject)
	assert.Equal(t, model.EventTokenRefreshed, msg.Header.Get("event_type"))
	assert.Equal(t, "gims-mcp-server", msg.Header.Get("service"))
	assert.Equal(t, "application/json", msg.Header.Get("content_type"))

	var payload model.TokenRefreshed
	env := decodeEnvelope(t, msg, &payload)
	assert.Equal(t, env.CorrelationID.String(), msg.Header.Get("correlation_id"))
	assert.Equal(t, "gims-mcp-server", env.Service)
	assert.Equal(t, "eyJhbGci***", payload.AccessPrefix)
	assert.True(t, payload.RefreshRotated)
	assert.Equal(t, int64(250), payload.DurationMillis)
	assert.NotContains(t, string(msg.Data), "access\"", "token never published in clear")
}

func TestAuthHooks(t *testing.T) {
	pub, js := newTestPublisher(false)
	hooks := pub.AuthHooks("https://gims.example.com")

	hooks.OnExpired(context.Background(), auth.Credentials{RefreshToken: "refresh-token-rejected"})
	require.Len(t, js.published, 1)
	assert.Equal(t, "evt.gims.mcp.auth.expired", js.published[0].Subject)

	var payload model.AuthExpired
	decodeEnvelope(t, js.published[0], &payload)
	assert.Equal(t, "https://gims.example.com", payload.BaseURL)
	assert.Equal(t, "refresh-***", payload.RefreshPrefix)

	hooks.OnRefreshed(context.Background(), auth.Credentials{AccessToken: "a"}, false, time.Second)
	require.Len(t, js.published, 2)
	assert.Equal(t, "evt.gims.mcp.token.refreshed", js.published[1].Subject)
}

func TestOnLogStreamDone(t *testing.T) {
	pub, js := newTestPublisher(false)
	started := time.Date(2026, 1, 11, 4, 23, 33, 0, time.UTC)

	pub.OnLogStreamDone(context.Background(), &logstream.Result{
		SessionID:    "s-1",
		ScriptID:     42,
		Lines:        []string{"a", "b"},
		TerminatedBy: logstream.TerminatedByTimeout,
		Partial:      true,
		StartedAt:    started,
		FinishedAt:   started.Add(time.Minute),
	})
	require.Len(t, js.published, 1)
	assert.Equal(t, "evt.gims.mcp.logstream.completed", js.published[0].Subject)

	var payload model.LogStreamCompleted
	decodeEnvelope(t, js.published[0], &payload)
	assert.Equal(t, 42, payload.ScriptID)
	assert.Equal(t, "timeout", payload.TerminatedBy)
	assert.Equal(t, 2, payload.Lines)
	assert.True(t, payload.Partial)
	assert.Equal(t, started, payload.StartedAt)
}

// ─── Failures ─────────────────────────────────────────────────────────────────

func TestPublish_Failure(t *testing.T) {
	pub, _ := newTestPublisher(true)

	err := pub.PublishAuthExpired(context.Background(), "https://gims.example.com", auth.Credentials{})
	require.Error(t, err)

	assert.NotPanics(t, func() {
		pub.AuthHooks("x").OnExpired(context.Background(), auth.Credentials{})
	})
}

func TestConnected_NoConnection(t *testing.T) {
	pub, _ := newTestPublisher(false)
	assert.False(t, pub.Connected())
	assert.NotPanics(t, pub.Close)
}
