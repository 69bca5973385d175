package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Frame is one server-sent event. Only Data is used by the log feed.
type Frame struct {
	Event string
	ID    string
	Data  string
}

// Scanner splits an event stream into frames. Frames end at a blank line;
// multiple data lines are joined with "\n"; comments and unknown fields
// are skipped. A frame cut off by EOF is still delivered.
type Scanner struct {
	r     *bufio.Reader
	frame Frame
	err   error
	done  bool
}

// NewScanner reads frames from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next frame. It returns false at end of stream or
// on a read error; see Err.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	s.frame = Frame{}

	var (
		data    []string
		hasData bool
		event   string
		id      string
	)
	emit := func() bool {
		s.frame = Frame{Event: event, ID: id, Data: strings.Join(data, "\n")}
		return true
	}

	for {
		line, err := s.r.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if hasData {
					return emit()
				}
				event, id = "", ""
			case strings.HasPrefix(line, ":"):
			default:
				field, value, _ := strings.Cut(line, ":")
				value = strings.TrimPrefix(value, " ")
				switch field {
				case "data":
					data = append(data, value)
					hasData = true
				case "event":
					event = value
				case "id":
					id = value
				}
			}
		}

		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = err
				return false
			}
			if hasData {
				return emit()
			}
			return false
		}
	}
}

// Frame returns the frame read by the last successful Next.
func (s *Scanner) Frame() Frame { return s.frame }

// Err returns the read error that stopped the scanner, or nil on clean EOF.
func (s *Scanner) Err() error { return s.err }
