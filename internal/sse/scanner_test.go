package sse

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, r io.Reader) ([]Frame, error) {
	t.Helper()
	s := NewScanner(r)
	var frames []Frame
	for s.Next() {
		frames = append(frames, s.Frame())
	}
	return frames, s.Err()
}

func TestScanner_BasicFrames(t *testing.T) {
	frames, err := collect(t, strings.NewReader("data: one\n\ndata: two\n\n"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "one", frames[0].Data)
	assert.Equal(t, "two", frames[1].Data)
}

func TestScanner_MultiLineDataAndFields(t *testing.T) {
	input := ": keepalive\nevent: log\nid: 7\ndata: {\"content\":\ndata: \"x\"}\n\n"
	frames, err := collect(t, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "log", frames[0].Event)
	assert.Equal(t, "7", frames[0].ID)
	assert.Equal(t, "{\"content\":\n\"x\"}", frames[0].Data)
}

func TestScanner_CRLFAndNoSpace(t *testing.T) {
	frames, err := collect(t, strings.NewReader("data:a\r\n\r\ndata:  b\r\n\r\n"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "a", frames[0].Data)
	assert.Equal(t, " b", frames[1].Data, "only one leading space is stripped")
}

func TestScanner_FinalFrameWithoutBlankLine(t *testing.T) {
	frames, err := collect(t, strings.NewReader("data: first\n\ndata: last"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "last", frames[1].Data)
}

func TestScanner_SkipsEmptyBlocks(t *testing.T) {
	frames, err := collect(t, strings.NewReader("\n\nevent: ping\n\n:comment\n\ndata: x\n\n"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "x", frames[0].Data)
	assert.Empty(t, frames[0].Event, "event type resets at a blank line")
}

type failingReader struct {
	data string
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.data == "" {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestScanner_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	frames, err := collect(t, &failingReader{data: "data: ok\n\ndata: partial\n", err: boom})
	require.ErrorIs(t, err, boom)
	require.Len(t, frames, 1)
	assert.Equal(t, "ok", frames[0].Data)
}
