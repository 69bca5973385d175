package auth

import (
	"errors"
	"sync/atomic"
)

// ErrAuthExpired is returned once the refresh token has been rejected.
// The message is shown to the user verbatim.
var ErrAuthExpired = errors.New("Ошибка аутентификации: токен обновления недействителен. Проверьте учётную запись и получите новые токены в GIMS.") //nolint:staticcheck

// Credentials is the access/refresh token pair used for every GIMS call.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store holds the process-wide Credentials. Readers always see a complete
// pair; the only mutation is Replace.
type Store struct {
	current atomic.Pointer[Credentials]
}

// NewStore creates a store seeded with the initial pair.
func NewStore(initial Credentials) *Store {
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Snapshot returns a copy of the current pair.
func (s *Store) Snapshot() Credentials {
	return *s.current.Load()
}

// Replace swaps the whole pair atomically.
func (s *Store) Replace(c Credentials) {
	s.current.Store(&c)
}
