// Package stream maintains the gateway's connection to the backend event
// feed and republishes governance events onto the local bus.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/metrics"
)

// State describes the connection state machine.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	// Stopped means reconnect attempts were exhausted or the stream was
	// closed deliberately.
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type publisher interface {
	Publish(context.Context, events.Event) error
}

// Options configure the stream client.
type Options struct {
	// URL of the backend feed. http(s) schemes use SSE, ws(s) use WebSocket.
	URL            string
	Token          string
	Bus            publisher
	Logger         *log.Logger
	MaxReconnects  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
	Dialer         *websocket.Dialer
}

// Stream is a reconnecting consumer of the backend event feed.
type Stream struct {
	url            string
	token          string
	bus            publisher
	logger         *log.Logger
	maxReconnects  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	httpClient     *http.Client
	dialer         *websocket.Dialer

	state      atomic.Int32
	reconnects atomic.Int64
}

// New creates a stream client. Zero-valued options fall back to defaults.
func New(opts Options) *Stream {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 10
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Stream{
		url:            opts.URL,
		token:          opts.Token,
		bus:            opts.Bus,
		logger:         opts.Logger,
		maxReconnects:  opts.MaxReconnects,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		httpClient:     opts.HTTPClient,
		dialer:         opts.Dialer,
	}
}

// State returns the current connection state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// Reconnects returns the number of reconnect attempts made so far.
func (s *Stream) Reconnects() int {
	return int(s.reconnects.Load())
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}

// Run consumes the feed until the context is cancelled or reconnect
// attempts are exhausted. Exhaustion is not an error: the stream logs and
// stops, per the degrade-don't-crash contract of the event relay.
func (s *Stream) Run(ctx context.Context) error {
	attempts := 0
	delay := s.initialBackoff

	for {
		s.setState(Connecting)
		connected, err := s.consume(ctx)
		s.setState(Disconnected)

		if ctx.Err() != nil {
			s.setState(Stopped)
			return ctx.Err()
		}
		if connected {
			// A healthy session resets the reconnect budget.
			attempts = 0
			delay = s.initialBackoff
		}

		attempts++
		if attempts > s.maxReconnects {
			s.setState(Stopped)
			s.logger.Printf("stream: giving up after %d reconnect attempts (last error: %v)", s.maxReconnects, err)
			return nil
		}

		s.reconnects.Add(1)
		metrics.ObserveStreamReconnect()
		s.logger.Printf("stream: connection lost (%v), reconnecting in %s (attempt %d/%d)", err, delay, attempts, s.maxReconnects)

		select {
		case <-ctx.Done():
			s.setState(Stopped)
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.maxBackoff {
			delay = s.maxBackoff
		}
	}
}

// consume opens one connection and relays events until it breaks. The
// returned bool reports whether a connection was established at all.
func (s *Stream) consume(ctx context.Context) (bool, error) {
	if strings.HasPrefix(s.url, "ws://") || strings.HasPrefix(s.url, "wss://") {
		return s.consumeWebSocket(ctx)
	}
	return s.consumeSSE(ctx)
}

func (s *Stream) consumeSSE(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("event stream returned %s", resp.Status)
	}

	s.setState(Connected)

	reader := bufio.NewReader(resp.Body)
	var (
		eventType string
		eventID   string
		dataLines []string
	)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return true, fmt.Errorf("event stream closed by server")
			}
			return true, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(dataLines) > 0 {
				s.relay(ctx, strings.Join(dataLines, "\n"), eventType, eventID)
				dataLines = dataLines[:0]
			}
			eventType = ""
			eventID = ""
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(line[len("id:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
		}
	}
}

func (s *Stream) consumeWebSocket(ctx context.Context) (bool, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return false, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	s.setState(Connected)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		s.relay(ctx, string(payload), "", "")
	}
}

// relay parses one raw message and publishes it onto the bus. Malformed
// payloads are logged and dropped; they never take the stream down.
func (s *Stream) relay(ctx context.Context, raw, fallbackType, fallbackID string) {
	var evt events.Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		metrics.ObserveStreamEvent("dropped")
		s.logger.Printf("stream: dropping malformed event: %v", err)
		return
	}
	if evt.Type == "" {
		evt.Type = fallbackType
	}
	if evt.ID == "" {
		evt.ID = fallbackID
	}
	if evt.Type == "" {
		metrics.ObserveStreamEvent("dropped")
		s.logger.Printf("stream: dropping event without type")
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, evt); err != nil {
			s.logger.Printf("stream: failed to publish event %s: %v", evt.ID, err)
		}
	}
	metrics.ObserveStreamEvent("relayed")
}
