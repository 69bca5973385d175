// Package secrets resolves the GIMS token pair from a secrets manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gelarm/gims-automation-mcp-server/internal/auth"
	pkgsecrets "github.com/gelarm/gims-automation-mcp-server/pkg/secrets"
	"github.com/gelarm/gims-automation-mcp-server/pkg/utils"
)

// TokenResolver reads the initial access/refresh pair from a secret, caching
// the parsed result locally to reduce API calls.
type TokenResolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[auth.Credentials]
}

// NewTokenResolver constructs a resolver over provider.
func NewTokenResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[auth.Credentials]) *TokenResolver {
	return &TokenResolver{logger: logger, provider: provider, cache: cache}
}

// Resolve fetches or returns the cached token pair stored under name.
func (r *TokenResolver) Resolve(ctx context.Context, name string) (auth.Credentials, error) {
	key := strings.ToLower(name)
	if c, ok := r.cache.Get(key); ok {
		return c, nil
	}

	secret, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed", zap.String("key", name), zap.Error(err))
		return auth.Credentials{}, fmt.Errorf("resolve gims tokens: %w", err)
	}

	c, err := parseTokens(secret)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("parse secret %q: %w", name, err)
	}
	r.cache.Put(key, c)

	r.logger.Info("aws.tokens_resolved",
		zap.String("key", name),
		zap.String("access_token", utils.MaskToken(c.AccessToken)))
	return c, nil
}

// parseTokens accepts both the GIMS field names and the environment variable
// names as secret keys.
func parseTokens(m map[string]string) (auth.Credentials, error) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(m[k]); v != "" {
				return v
			}
		}
		return ""
	}
	c := auth.Credentials{
		AccessToken:  first("access_token", "GIMS_ACCESS_TOKEN"),
		RefreshToken: first("refresh_token", "GIMS_REFRESH_TOKEN"),
	}
	if c.AccessToken == "" {
		return c, errors.New("missing access_token")
	}
	if c.RefreshToken == "" {
		return c, errors.New("missing refresh_token")
	}
	return c, nil
}
