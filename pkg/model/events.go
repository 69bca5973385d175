package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the server.
const (
	EventTokenRefreshed     = "token.refreshed"
	EventAuthExpired        = "auth.expired"
	EventLogStreamCompleted = "logstream.completed"
)

// Envelope is the canonical wrapper for every event published on NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"event_id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	Service       string          `json:"service"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// TokenRefreshed is emitted after a successful credential rotation.
// Only masked token prefixes are carried.
type TokenRefreshed struct {
	BaseURL        string `json:"base_url"`
	AccessPrefix   string `json:"access_prefix"`
	RefreshRotated bool   `json:"refresh_rotated"`
	DurationMillis int64  `json:"duration_ms"`
}

// AuthExpired is emitted once when the refresh token is rejected.
type AuthExpired struct {
	BaseURL       string `json:"base_url"`
	RefreshPrefix string `json:"refresh_prefix"`
}

// LogStreamCompleted summarizes one execution-log session.
type LogStreamCompleted struct {
	SessionID    string    `json:"session_id"`
	ScriptID     int       `json:"script_id"`
	TerminatedBy string    `json:"terminated_by"`
	Partial      bool      `json:"partial"`
	Lines        int       `json:"lines"`
	Truncated    bool      `json:"truncated"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewEnvelope wraps payload into an envelope stamped with fresh ids.
func NewEnvelope(service, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     eventType,
		Service:       service,
		OccurredAt:    time.Now().UTC(),
		Payload:       data,
	}, nil
}
