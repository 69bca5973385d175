package gims

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gelarm/gims-automation-mcp-server/internal/auth"
)

// Kind classifies a failed GIMS call.
type Kind string

const (
	KindAuthExpired  Kind = "auth_expired"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindForbidden    Kind = "forbidden"
	KindTransient    Kind = "transient"
)

type kindError struct{ kind Kind }

func (e *kindError) Error() string { return "gims: " + string(e.kind) }

// Sentinels for errors.Is.
var (
	ErrAuthExpired  error = &kindError{KindAuthExpired}
	ErrUnauthorized error = &kindError{KindUnauthorized}
	ErrNotFound     error = &kindError{KindNotFound}
	ErrValidation   error = &kindError{KindValidation}
	ErrForbidden    error = &kindError{KindForbidden}
	ErrTransient    error = &kindError{KindTransient}
)

// APIError is returned for every unsuccessful GIMS call.
type APIError struct {
	Kind    Kind
	Status  int // 0 when no HTTP response was received
	Message string
	Detail  string
	Err     error
}

func (e *APIError) Error() string {
	if e.Kind == KindAuthExpired {
		return e.Message
	}
	if e.Status == 0 {
		return fmt.Sprintf("GIMS API Error: %s", e.Message)
	}
	return fmt.Sprintf("GIMS API Error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *APIError) Is(target error) bool {
	var k *kindError
	if errors.As(target, &k) {
		return k.kind == e.Kind
	}
	return false
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func authExpiredError(err error) *APIError {
	return &APIError{
		Kind:    KindAuthExpired,
		Status:  http.StatusUnauthorized,
		Message: auth.ErrAuthExpired.Error(),
		Err:     err,
	}
}

func networkError(err error) *APIError {
	return &APIError{
		Kind:    KindTransient,
		Message: "Request failed",
		Detail:  err.Error(),
		Err:     err,
	}
}

// classify maps a non-2xx response onto the error taxonomy.
func classify(status int, body []byte) *APIError {
	e := &APIError{Status: status, Detail: detailOf(body)}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind, e.Message = KindUnauthorized, "Authentication failed"
		if e.Detail == "" {
			e.Detail = "Token may be expired or invalid"
		}
	case status == http.StatusForbidden:
		e.Kind, e.Message = KindForbidden, "Permission denied"
		if e.Detail == "" {
			e.Detail = "Insufficient permissions for this operation"
		}
	case status == http.StatusNotFound:
		e.Kind, e.Message = KindNotFound, "Not found"
		if e.Detail == "" {
			e.Detail = "The requested resource was not found"
		}
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind, e.Message = KindTransient, "Server unavailable"
	default:
		e.Kind, e.Message = KindValidation, "API error"
	}
	return e
}

// maxDetailBytes caps a non-JSON error body carried as detail.
const maxDetailBytes = 500

// detailOf extracts the "detail" field of a JSON error body, falling back to
// the whole body.
func detailOf(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if d, ok := obj["detail"].(string); ok {
			return d
		}
		return trimmed
	}
	if len(trimmed) > maxDetailBytes {
		cut := maxDetailBytes
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		return trimmed[:cut] + "..."
	}
	return trimmed
}
