package binance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/alejandrodnm/updown/internal/domain"
)

const (
	streamMaxAge     = 3 * time.Second
	streamReadWait   = 30 * time.Second
	reconnectBackoff = time.Second
	reconnectMax     = 30 * time.Second
)

// ErrStreamStale is returned while the stream has no recent book update.
var ErrStreamStale = errors.New("binance: no fresh stream quote")

// StreamSource keeps the latest <symbol>@bookTicker update from the websocket
// stream and serves it as a quote. Updates older than maxAge are refused so
// the feed falls through to the REST sources.
type StreamSource struct {
	c      *Client
	url    string
	maxAge time.Duration
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu     sync.RWMutex
	last   domain.Quote
	lastAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// StreamSource creates a stream source against baseURL (DefaultStreamURL when
// empty). Start must be called before it yields quotes.
func (c *Client) StreamSource(baseURL string) *StreamSource {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &StreamSource{
		c:      c,
		url:    strings.TrimRight(baseURL, "/") + "/" + strings.ToLower(c.symbol) + "@bookTicker",
		maxAge: streamMaxAge,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    c.log.With().Str("source", "stream").Logger(),
	}
}

func (s *StreamSource) Name() string { return "binance/stream" }

// Start connects in the background and reconnects with backoff until Close
// or until ctx is done.
func (s *StreamSource) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Close stops the stream and waits for the reader to exit.
func (s *StreamSource) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// FetchQuote implements ports.QuoteSource.
func (s *StreamSource) FetchQuote(context.Context) (domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastAt.IsZero() || time.Since(s.lastAt) > s.maxAge {
		return domain.Quote{}, ErrStreamStale
	}
	return s.last, nil
}

func (s *StreamSource) run(ctx context.Context) {
	defer close(s.done)
	backoff := reconnectBackoff
	for {
		received, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if received > 0 {
			backoff = reconnectBackoff
		}
		s.log.Warn().Err(err).Int("messages", received).Dur("retry_in", backoff).Msg("stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, reconnectMax)
	}
}

// session reads one connection until it fails. It returns the number of
// usable updates received.
func (s *StreamSource) session(ctx context.Context) (int, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()

	s.log.Info().Str("url", s.url).Msg("stream connected")
	received := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, err
		}
		var msg streamBookTicker
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug().Err(err).Msg("skipping stream message")
			continue
		}
		q, err := mapStreamTicker(msg)
		if err != nil {
			continue
		}
		q = s.c.stamp(q)

		s.mu.Lock()
		s.last, s.lastAt = q, time.Now()
		s.mu.Unlock()
		received++
	}
}
