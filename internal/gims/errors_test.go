package gims

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

// ─── Detail extraction ────────────────────────────────────────────────────────

func TestDetailOf_JSONDetail(t *testing.T) {
	assert.Equal(t, "Объект не найден", detailOf([]byte(`{"detail": "Объект не найден"}`)))
	assert.Equal(t, `{"name": ["required"]}`, detailOf([]byte(` {"name": ["required"]} `)))
	assert.Empty(t, detailOf([]byte("  ")))
}

func TestDetailOf_TruncatesOnRuneBoundary(t *testing.T) {
	// 'x' shifts every two-byte Cyrillic rune so byte 500 falls inside one.
	body := "x" + strings.Repeat("ошибка ", 200)

	got := detailOf([]byte(body))

	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxDetailBytes+len("..."))
	assert.True(t, strings.HasPrefix(body, strings.TrimSuffix(got, "...")))
}

func TestClassify_CyrillicPlainBody(t *testing.T) {
	err := classify(http.StatusBadGateway, []byte("x"+strings.Repeat("сервер недоступен ", 100)))

	assert.Equal(t, KindTransient, err.Kind)
	assert.True(t, utf8.ValidString(err.Detail))
}
