package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTokenSink persists the latest pair so a restarted server keeps
// working after the backend rotated the refresh token.
type RedisTokenSink struct {
	logger *zap.Logger
	rdb    redis.Cmdable
	key    string
}

// NewRedisTokenSink keys the stored pair by the GIMS instance and the
// configured refresh token, so a new token set from the operator starts fresh.
func NewRedisTokenSink(logger *zap.Logger, rdb redis.Cmdable, baseURL string, initial Credentials) *RedisTokenSink {
	return &RedisTokenSink{
		logger: logger,
		rdb:    rdb,
		key:    "gims:tokens:" + fingerprint(baseURL, initial.RefreshToken),
	}
}

func fingerprint(baseURL, refreshToken string) string {
	sum := sha256.Sum256([]byte(baseURL + "|" + refreshToken))
	return hex.EncodeToString(sum[:])[:16]
}

// Key returns the Redis key holding the pair.
func (s *RedisTokenSink) Key() string { return s.key }

// Save stores c without expiry.
func (s *RedisTokenSink) Save(ctx context.Context, c Credentials) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	s.logger.Debug("auth.tokens_persisted", zap.String("key", s.key))
	return nil
}

// Load returns the stored pair, if any.
func (s *RedisTokenSink) Load(ctx context.Context) (Credentials, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, false, fmt.Errorf("decode stored tokens: %w", err)
	}
	if c.AccessToken == "" || c.RefreshToken == "" {
		return Credentials{}, false, nil
	}
	return c, true, nil
}

// Restore returns the stored pair when present, otherwise initial.
func (s *RedisTokenSink) Restore(ctx context.Context, initial Credentials) Credentials {
	stored, ok, err := s.Load(ctx)
	if err != nil {
		s.logger.Warn("auth.token_restore_failed", zap.Error(err))
		return initial
	}
	if !ok {
		return initial
	}
	s.logger.Info("auth.tokens_restored", zap.String("key", s.key))
	return stored
}
