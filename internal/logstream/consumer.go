package logstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gelarm/gims-automation-mcp-server/internal/metrics"
	"github.com/gelarm/gims-automation-mcp-server/internal/sse"
)

// TerminatedBy is the terminal state of a session.
type TerminatedBy string

const (
	TerminatedByMarker  TerminatedBy = "marker"
	TerminatedByTimeout TerminatedBy = "timeout"
	TerminatedByError   TerminatedBy = "error"
)

// DefaultEndMarkers is used when a request names none.
var DefaultEndMarkers = []string{"END SCRIPT"}

// LogURLResolver finds the feed address of a script.
type LogURLResolver interface {
	ScriptLogURL(ctx context.Context, scriptID int) (string, error)
}

// Streamer opens an authenticated event stream.
type Streamer interface {
	Stream(ctx context.Context, rawURL string) (*http.Response, error)
}

// Config holds the consumer defaults.
type Config struct {
	// SiteURL is the GIMS root; relative feed URLs resolve against it.
	SiteURL        string
	DefaultTimeout time.Duration

	// MaxBytes bounds the collected output; 0 disables the budget.
	MaxBytes int
}

// Request describes one log collection.
type Request struct {
	ScriptID      int
	Timeout       time.Duration
	EndMarkers    []string
	FilterPattern string
	KeepTimestamp bool
}

// Result is the outcome of a session. Partial is true unless the session
// ended on an end marker.
type Result struct {
	SessionID    string        `json:"session_id"`
	ScriptID     int           `json:"script_id"`
	Lines        []string      `json:"lines"`
	TerminatedBy TerminatedBy  `json:"terminated_by"`
	Partial      bool          `json:"partial"`
	Truncated    bool          `json:"truncated"`
	Error        string        `json:"error,omitempty"`
	Timeout      time.Duration `json:"-"`
	MaxBytes     int           `json:"-"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Consumer runs log stream sessions.
type Consumer struct {
	logger   *zap.Logger
	resolver LogURLResolver
	streamer Streamer
	cfg      Config
	onDone   func(ctx context.Context, res *Result)
}

// NewConsumer creates a consumer.
func NewConsumer(logger *zap.Logger, resolver LogURLResolver, streamer Streamer, cfg Config) *Consumer {
	return &Consumer{logger: logger, resolver: resolver, streamer: streamer, cfg: cfg}
}

// OnDone registers a callback invoked after every finished session.
func (c *Consumer) OnDone(fn func(ctx context.Context, res *Result)) {
	c.onDone = fn
}

// Run collects the execution log of a script until an end marker appears,
// the timeout elapses, or the stream fails. Stream termination by timeout
// or error is reported in the Result, not as an error; the returned error
// covers only a feed URL lookup that failed before the deadline.
func (c *Consumer) Run(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	// An explicit empty list disables markers; the session then ends on
	// timeout or stream error.
	markers := req.EndMarkers
	if markers == nil {
		markers = DefaultEndMarkers
	}

	started := time.Now()
	sctx, cancel := context.WithDeadline(ctx, started.Add(timeout))
	defer cancel()

	s := &session{
		markers:  markers,
		filter:   NewFilter(req.FilterPattern),
		keepTS:   req.KeepTimestamp,
		maxBytes: c.cfg.MaxBytes,
	}
	res := &Result{
		SessionID: uuid.NewString(),
		ScriptID:  req.ScriptID,
		Timeout:   timeout,
		MaxBytes:  c.cfg.MaxBytes,
		StartedAt: started.UTC(),
	}

	// The deadline covers the feed lookup as well as the stream.
	feed, err := c.resolver.ScriptLogURL(sctx, req.ScriptID)
	switch {
	case err != nil && deadlineHit(sctx, ctx):
		res.TerminatedBy = TerminatedByTimeout
	case err != nil:
		return nil, err
	default:
		streamURL, err := c.streamURL(feed)
		if err != nil {
			return nil, fmt.Errorf("invalid log url %q: %w", feed, err)
		}
		res.TerminatedBy, res.Error = c.stream(sctx, ctx, streamURL, s)
	}

	res.Lines = s.lines
	if res.Lines == nil {
		res.Lines = []string{}
	}
	res.Truncated = s.truncated
	res.Partial = res.TerminatedBy != TerminatedByMarker
	res.FinishedAt = time.Now().UTC()

	metrics.IncLogStreamSession(string(res.TerminatedBy))
	c.logger.Info("logstream.session_done",
		zap.String("session_id", res.SessionID),
		zap.Int("script_id", req.ScriptID),
		zap.String("terminated_by", string(res.TerminatedBy)),
		zap.Int("lines", len(res.Lines)),
		zap.Bool("truncated", res.Truncated),
		zap.Duration("elapsed", time.Since(started)))

	if c.onDone != nil {
		c.onDone(context.WithoutCancel(ctx), res)
	}
	return res, nil
}

// stream drives CONNECTING → STREAMING → terminal state. The connection is
// closed on every exit path, including deadline and caller cancellation.
func (c *Consumer) stream(sctx, parent context.Context, streamURL string, s *session) (TerminatedBy, string) {
	timedOut := func() bool { return deadlineHit(sctx, parent) }

	resp, err := c.streamer.Stream(sctx, streamURL)
	if err != nil {
		if timedOut() {
			return TerminatedByTimeout, ""
		}
		c.logger.Warn("logstream.connect_failed", zap.String("url", streamURL), zap.Error(err))
		return TerminatedByError, fmt.Sprintf("SSE connection error: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	// Unblock the reader as soon as the session context ends.
	stop := context.AfterFunc(sctx, func() { _ = resp.Body.Close() })
	defer stop()

	scanner := sse.NewScanner(resp.Body)
	for scanner.Next() {
		for _, raw := range splitLines(frameContent(scanner.Frame().Data)) {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			if s.append(raw) {
				return TerminatedByMarker, ""
			}
		}
		if sctx.Err() != nil {
			break
		}
	}

	if timedOut() {
		return TerminatedByTimeout, ""
	}
	if parent.Err() != nil {
		return TerminatedByError, parent.Err().Error()
	}
	if err := scanner.Err(); err != nil {
		return TerminatedByError, fmt.Sprintf("SSE stream error: %v", err)
	}
	return TerminatedByError, "SSE stream closed by server before end marker"
}

// deadlineHit reports whether sctx ended on its own deadline rather than by
// the caller leaving.
func deadlineHit(sctx, parent context.Context) bool {
	return errors.Is(sctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

func (c *Consumer) streamURL(feed string) (string, error) {
	raw := strings.TrimSpace(feed)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		raw = strings.TrimRight(c.cfg.SiteURL, "/") + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	// tail=0 streams only entries written after the connection opens.
	q := u.Query()
	q.Set("tail", "0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session accumulates output lines for one Run.
type session struct {
	markers   []string
	filter    *Filter
	keepTS    bool
	maxBytes  int
	lines     []string
	size      int
	truncated bool
}

// append records one raw line and reports whether it carries an end marker.
// Lines are normalized and filtered on arrival; only the output is kept.
// The marker line bypasses the filter and the size budget.
func (s *session) append(raw string) bool {
	isMarker := containsMarker(raw, s.markers)
	line := Normalize(raw, s.keepTS)

	if isMarker {
		s.lines = append(s.lines, line)
		s.size += len(line) + 1
		return true
	}
	if !s.filter.Match(line) {
		return false
	}
	if s.truncated {
		return false
	}
	if s.maxBytes > 0 && s.size+len(line)+1 > s.maxBytes {
		s.truncated = true
		return false
	}
	s.lines = append(s.lines, line)
	s.size += len(line) + 1
	return false
}
