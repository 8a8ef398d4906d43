// Package events consumes the backend's server-push notification stream.
package events

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultEventType is the type of events that carry no event field.
const DefaultEventType = "message"

// MaxLineSize bounds a single field line. Longer lines fail the stream.
const MaxLineSize = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	ID   string
	Type string
	Data string
}

// Decoder reads events from a text/event-stream body. Lines may end in CRLF,
// LF or a bare CR.
type Decoder struct {
	scanner *bufio.Scanner
	skipLF  bool

	lastID string
	retry  time.Duration
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	d := &Decoder{scanner: bufio.NewScanner(r)}
	d.scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	d.scanner.Split(d.splitLine)
	return d
}

// LastEventID is the id of the last dispatched event block. An id read in a
// block that never completed is not reported.
func (d *Decoder) LastEventID() string {
	return d.lastID
}

// Retry is the last reconnection delay requested by the server, or zero.
func (d *Decoder) Retry() time.Duration {
	return d.retry
}

// Next blocks until a complete event is available. It returns io.EOF once the
// stream ends; a trailing event without its terminating blank line is discarded.
func (d *Decoder) Next() (Event, error) {
	var (
		eventType string
		data      strings.Builder
		hasData   bool
		pendingID = d.lastID
	)

	for {
		line, err := d.readLine()
		if err != nil {
			return Event{}, err
		}

		if line == "" {
			d.lastID = pendingID
			if !hasData {
				eventType = ""
				continue
			}
			if eventType == "" {
				eventType = DefaultEventType
			}
			return Event{ID: d.lastID, Type: eventType, Data: data.String()}, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			eventType = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				pendingID = value
			}
		case "retry":
			if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
				d.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

func (d *Decoder) readLine() (string, error) {
	if d.scanner.Scan() {
		return d.scanner.Text(), nil
	}
	if err := d.scanner.Err(); err != nil {
		return "", fmt.Errorf("read event line: %w", err)
	}
	return "", io.EOF
}

// splitLine is a bufio.SplitFunc for CRLF, LF and CR terminated lines. A CR at
// the end of the buffered data is emitted at once; a following LF is skipped.
func (d *Decoder) splitLine(data []byte, atEOF bool) (int, []byte, error) {
	if d.skipLF && len(data) > 0 {
		d.skipLF = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		d.skipLF = true
		return i + 1, data[:i], nil
	}

	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
