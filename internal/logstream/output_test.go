package logstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		keep bool
		want string
	}{
		{"2025-01-01T10:00:00 INFO hello", false, "hello"},
		{"2025-01-01T10:00:00 INFO hello", true, "2025-01-01T10:00:00 INFO hello"},
		{"2026-01-11 04:23:33,350 [INFO] Script started", false, "Script started"},
		{"2026-01-11 04:23:33.350123+03:00 [ERROR] boom", false, "boom"},
		{"2026-01-11T04:23:33Z WARNING disk low", false, "disk low"},
		{"plain line without header", false, "plain line without header"},
		{"INFO ok", false, "INFO ok"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, tt.keep))
		})
	}
}

func TestFilter(t *testing.T) {
	var none *Filter
	assert.True(t, none.Match("anything"))
	assert.Nil(t, NewFilter(""))

	re := NewFilter(`ERR(OR)?\b`)
	assert.True(t, re.Match("ERROR bad"))
	assert.False(t, re.Match("INFO ok"))

	literal := NewFilter("value[")
	assert.True(t, literal.Match("bad value[3"), "invalid regex falls back to substring")
	assert.False(t, literal.Match("value 3"))
}

func TestFrameContent(t *testing.T) {
	assert.Equal(t, "line1\nline2", frameContent(`{"content":"line1\nline2"}`))
	assert.Equal(t, "", frameContent(`{"status":"ping"}`))
	assert.Equal(t, "raw text", frameContent("raw text"))
	assert.Equal(t, "{not json", frameContent("{not json"))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", ""}, splitLines("a\r\nb\rc\n"))
}

func TestContainsMarker(t *testing.T) {
	assert.True(t, containsMarker("2026-01-11 [INFO] END SCRIPT ok", []string{"END SCRIPT"}))
	assert.False(t, containsMarker("end script", []string{"END SCRIPT"}), "case sensitive")
	assert.False(t, containsMarker("anything", []string{""}), "empty marker ignored")
}

func TestResultText(t *testing.T) {
	r := &Result{Lines: []string{"a", "b"}, TerminatedBy: TerminatedByMarker}
	assert.Equal(t, "a\nb", r.Text())

	r = &Result{Lines: []string{"a"}, TerminatedBy: TerminatedByTimeout, Timeout: 60e9, Truncated: true, MaxBytes: 10240}
	assert.Equal(t, "WARNING: Timeout (60s) reached without end marker\nWARNING: Size limit (10KB) reached\n\na", r.Text())

	r = &Result{TerminatedBy: TerminatedByError, Error: "SSE connection error: refused"}
	assert.Equal(t, "WARNING: SSE connection error: refused\n\n", r.Text())

	r = &Result{TerminatedBy: TerminatedByError}
	assert.Equal(t, "No log data received", r.Text())
}
