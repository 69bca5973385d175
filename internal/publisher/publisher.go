package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gelarm/gims-automation-mcp-server/internal/auth"
	"github.com/gelarm/gims-automation-mcp-server/internal/logstream"
	"github.com/gelarm/gims-automation-mcp-server/internal/metrics"
	"github.com/gelarm/gims-automation-mcp-server/pkg/logger"
	"github.com/gelarm/gims-automation-mcp-server/pkg/model"
	"github.com/gelarm/gims-automation-mcp-server/pkg/utils"
)

// publishTimeout bounds a single publish; hooks run on detached contexts.
const publishTimeout = 5 * time.Second

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher emits server events on NATS JetStream. Each event type goes to
// "<subject>.<event_type>".
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	subject string
	service string
}

// New creates a Publisher on a JetStream-enabled connection.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// SubjectFor returns the subject an event type is published on.
func (p *Publisher) SubjectFor(eventType string) string {
	return p.subject + "." + eventType
}

// PublishEnvelope serializes and publishes env.
func (p *Publisher) PublishEnvelope(ctx context.Context, env *model.Envelope) error {
	subject := p.SubjectFor(env.EventType)

	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(pubCtx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

func (p *Publisher) publish(ctx context.Context, eventType string, payload any) error {
	env, err := model.NewEnvelope(p.service, eventType, payload)
	if err != nil {
		metrics.IncNATSMessage(p.SubjectFor(eventType), "marshal_failed")
		return err
	}
	return p.PublishEnvelope(ctx, env)
}

// PublishTokenRefreshed emits token.refreshed with masked token prefixes.
func (p *Publisher) PublishTokenRefreshed(ctx context.Context, baseURL string, c auth.Credentials, rotated bool, took time.Duration) error {
	return p.publish(ctx, model.EventTokenRefreshed, model.TokenRefreshed{
		BaseURL:        baseURL,
		AccessPrefix:   utils.MaskToken(c.AccessToken),
		RefreshRotated: rotated,
		DurationMillis: took.Milliseconds(),
	})
}

// PublishAuthExpired emits auth.expired for a rejected refresh token.
func (p *Publisher) PublishAuthExpired(ctx context.Context, baseURL string, rejected auth.Credentials) error {
	return p.publish(ctx, model.EventAuthExpired, model.AuthExpired{
		BaseURL:       baseURL,
		RefreshPrefix: utils.MaskToken(rejected.RefreshToken),
	})
}

// PublishLogStreamCompleted emits logstream.completed for a finished session.
func (p *Publisher) PublishLogStreamCompleted(ctx context.Context, res *logstream.Result) error {
	return p.publish(ctx, model.EventLogStreamCompleted, model.LogStreamCompleted{
		SessionID:    res.SessionID,
		ScriptID:     res.ScriptID,
		TerminatedBy: string(res.TerminatedBy),
		Partial:      res.Partial,
		Lines:        len(res.Lines),
		Truncated:    res.Truncated,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	})
}

// AuthHooks adapts the publisher to the refresh gate callbacks. Publish
// failures are logged and never affect the refresh outcome.
func (p *Publisher) AuthHooks(baseURL string) auth.Hooks {
	return auth.Hooks{
		OnRefreshed: func(ctx context.Context, c auth.Credentials, rotated bool, took time.Duration) {
			_ = p.PublishTokenRefreshed(ctx, baseURL, c, rotated, took)
		},
		OnExpired: func(ctx context.Context, rejected auth.Credentials) {
			_ = p.PublishAuthExpired(ctx, baseURL, rejected)
		},
	}
}

// OnLogStreamDone is a logstream.Consumer completion callback.
func (p *Publisher) OnLogStreamDone(ctx context.Context, res *logstream.Result) {
	_ = p.PublishLogStreamCompleted(ctx, res)
}

// Connected reports whether the NATS connection is up.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
