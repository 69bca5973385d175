package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gelarm/gims-automation-mcp-server/internal/metrics"
	"github.com/gelarm/gims-automation-mcp-server/pkg/utils"
)

const defaultRefreshTimeout = 30 * time.Second

// Refresher exchanges a refresh token for a new pair. Implementations return
// an error wrapping ErrAuthExpired when the backend rejects the token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}

// TokenSink receives every pair installed by a successful refresh.
type TokenSink interface {
	Save(ctx context.Context, c Credentials) error
}

// Hooks are optional callbacks fired after a refresh resolves.
type Hooks struct {
	OnRefreshed func(ctx context.Context, c Credentials, rotated bool, took time.Duration)
	OnExpired   func(ctx context.Context, rejected Credentials)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithSink persists refreshed pairs.
func WithSink(s TokenSink) GateOption {
	return func(g *Gate) { g.sink = s }
}

// WithHooks installs refresh callbacks.
func WithHooks(h Hooks) GateOption {
	return func(g *Gate) { g.hooks = h }
}

// WithRefreshTimeout bounds a single refresh call.
func WithRefreshTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// Gate serializes token refreshes. At most one refresh call is in flight;
// callers that hit 401 concurrently share its outcome.
type Gate struct {
	logger    *zap.Logger
	store     *Store
	refresher Refresher
	sink      TokenSink
	hooks     Hooks
	timeout   time.Duration

	group    singleflight.Group
	rejected atomic.Pointer[string] // refresh token the backend refused
	pending  sync.WaitGroup         // post-refresh persistence and hooks
}

// NewGate creates the refresh gate for store.
func NewGate(logger *zap.Logger, store *Store, refresher Refresher, opts ...GateOption) *Gate {
	g := &Gate{
		logger:    logger,
		store:     store,
		refresher: refresher,
		timeout:   defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Refresh obtains credentials newer than the ones carrying staleAccess.
// If another caller already replaced them, the current pair is returned
// without a network call. A rejected refresh token yields ErrAuthExpired
// for every caller until the pair changes.
func (g *Gate) Refresh(ctx context.Context, staleAccess string) (Credentials, error) {
	if cur := g.store.Snapshot(); cur.AccessToken != staleAccess {
		return cur, nil
	}

	ch := g.group.DoChan("refresh", func() (any, error) {
		return g.refresh(ctx, staleAccess)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err
		}
		return res.Val.(Credentials), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

func (g *Gate) refresh(ctx context.Context, staleAccess string) (Credentials, error) {
	cur := g.store.Snapshot()
	if cur.AccessToken != staleAccess {
		return cur, nil
	}
	if r := g.rejected.Load(); r != nil && *r == cur.RefreshToken {
		return Credentials{}, ErrAuthExpired
	}

	// Waiters share this call; the leader's cancellation must not fail them.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	start := time.Now()
	next, err := g.refresher.Refresh(callCtx, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrAuthExpired) {
			token := cur.RefreshToken
			g.rejected.Store(&token)
			metrics.IncTokenRefresh("expired")
			g.logger.Error("auth.refresh_rejected",
				zap.String("refresh_token", utils.MaskToken(cur.RefreshToken)))
			if g.hooks.OnExpired != nil {
				g.background(ctx, func(bctx context.Context) { g.hooks.OnExpired(bctx, cur) })
			}
			return Credentials{}, ErrAuthExpired
		}
		metrics.IncTokenRefresh("error")
		g.logger.Warn("auth.refresh_failed", zap.Error(err))
		return Credentials{}, fmt.Errorf("refresh access token: %w", err)
	}

	rotated := next.RefreshToken != "" && next.RefreshToken != cur.RefreshToken
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	g.store.Replace(next)
	took := time.Since(start)

	metrics.IncTokenRefresh("ok")
	g.logger.Info("auth.refresh_success",
		zap.String("access_token", utils.MaskToken(next.AccessToken)),
		zap.Bool("refresh_rotated", rotated),
		zap.Duration("took", took))

	g.background(ctx, func(bctx context.Context) {
		if g.sink != nil {
			if err := g.sink.Save(bctx, next); err != nil {
				g.logger.Warn("auth.token_persist_failed", zap.Error(err))
			}
		}
		if g.hooks.OnRefreshed != nil {
			g.hooks.OnRefreshed(bctx, next, rotated, took)
		}
	})
	return next, nil
}

// background runs post-refresh side effects outside the shared flight, on a
// context detached from the caller and bounded by the refresh timeout.
func (g *Gate) background(ctx context.Context, fn func(ctx context.Context)) {
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		fn(bctx)
	}()
}

// Flush waits until persistence and hooks of finished refreshes complete.
func (g *Gate) Flush() {
	g.pending.Wait()
}

// Expired reports whether the current refresh token has been rejected.
func (g *Gate) Expired() bool {
	r := g.rejected.Load()
	return r != nil && *r == g.store.Snapshot().RefreshToken
}
