package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/subscribr/web/internal/logging"
)

// DefaultRetry is the reconnection delay used until the server sends a retry field.
const DefaultRetry = 3 * time.Second

// ErrClosedByServer is returned when the server answers 204 No Content, which
// tells the client to stop reconnecting.
var ErrClosedByServer = errors.New("event stream closed by server")

// ConnectError reports a response that can never become an event stream.
type ConnectError struct {
	StatusCode  int
	ContentType string
}

func (e *ConnectError) Error() string {
	if e.StatusCode != http.StatusOK {
		return fmt.Sprintf("event stream: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("event stream: unexpected content type %q", e.ContentType)
}

// Stream is a reconnecting server-sent events client for a single URL. Missed
// events are not replayed; the last seen event id is sent on reconnect and the
// server decides what to do with it. A Stream must not be run concurrently.
type Stream struct {
	url    string
	client *http.Client

	retry       time.Duration
	lastEventID string
}

// NewStream prepares a stream for url. A zero retry selects DefaultRetry.
func NewStream(url string, client *http.Client, retry time.Duration) *Stream {
	if client == nil {
		client = http.DefaultClient
	}
	if retry <= 0 {
		retry = DefaultRetry
	}
	return &Stream{url: url, client: client, retry: retry}
}

// Run connects and passes every event to handle until ctx is cancelled or the
// connection fails in a way reconnecting cannot fix. It returns ctx.Err() on
// cancellation.
func (s *Stream) Run(ctx context.Context, handle func(Event)) error {
	logger := logging.FromContext(ctx).With(slog.String("stream_url", s.url))

	for {
		err := s.connect(ctx, logger, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var connectErr *ConnectError
		if errors.Is(err, ErrClosedByServer) || errors.As(err, &connectErr) {
			logger.Warn("event stream stopped", "error", err)
			return err
		}

		logger.Info("event stream disconnected, reconnecting", "error", err, "retry", s.retry)

		timer := time.NewTimer(s.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Stream) connect(ctx context.Context, logger *slog.Logger, handle func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastEventID != "" {
		req.Header.Set("Last-Event-ID", s.lastEventID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return ErrClosedByServer
	}
	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if resp.StatusCode != http.StatusOK || mediaType != "text/event-stream" {
		return &ConnectError{StatusCode: resp.StatusCode, ContentType: contentType}
	}

	logger.Info("event stream connected")

	dec := NewDecoder(resp.Body)
	dec.lastID = s.lastEventID
	for {
		ev, err := dec.Next()
		s.lastEventID = dec.LastEventID()
		if retry := dec.Retry(); retry > 0 {
			s.retry = retry
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read event stream: %w", err)
		}
		handle(ev)
	}
}
