package swapper

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	statusStreamPingInterval   = 15 * time.Second
	statusStreamReconnectDelay = 2 * time.Second
	// statusStreamReadTimeout reconnects after two consecutive missed
	// pings rather than three.
	statusStreamReadTimeout = 2 * statusStreamPingInterval
)

// wsSubscribeMessage is the subscription frame sent on (re)connect, and
// again on resubscribe after a reconnect, for every swap ID currently being
// watched.
type wsSubscribeMessage struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Args    []string `json:"args"`
}

// wsStatusMessage is one incoming frame from the status channel.
type wsStatusMessage struct {
	Event string `json:"event"`
	Args  []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"args"`
}

// StatusStream is the long-lived websocket subscription to the
// counterparty's swap status channel. It reconnects and resubscribes
// automatically; each reconnect re-sends every swap ID currently being
// watched so no subscription is lost across a drop.
type StatusStream struct {
	url    string
	apiKey string

	mu        sync.Mutex
	watching  map[string]struct{}
	updates   chan SwapStatus
	dedup     map[string]string // swap ID -> last status seen on this connection, resets per connection
	closeOnce sync.Once
	closed    chan struct{}
}

// NewStatusStream builds a StatusStream pointed at the given websocket URL
// (ws(s)://host/v2/ws). Run must be called to actually connect.
func NewStatusStream(wsURL, apiKey string) *StatusStream {
	return &StatusStream{
		url:      wsURL,
		apiKey:   apiKey,
		watching: make(map[string]struct{}),
		updates:  make(chan SwapStatus, 256),
		closed:   make(chan struct{}),
	}
}

// Updates returns the channel status updates are delivered on.
func (s *StatusStream) Updates() <-chan SwapStatus {
	return s.updates
}

// Watch adds a swap ID to the subscribed set. The subscription is sent on
// the next (re)connect and on every one after it; an already-open
// connection is not sent a new subscribe frame.
func (s *StatusStream) Watch(swapID string) {
	s.mu.Lock()
	s.watching[swapID] = struct{}{}
	s.mu.Unlock()
}

// Unwatch removes a swap ID from the subscribed set.
func (s *StatusStream) Unwatch(swapID string) {
	s.mu.Lock()
	delete(s.watching, swapID)
	s.mu.Unlock()
}

// Close tears down the stream; Run returns once the current connection (if
// any) has been closed.
func (s *StatusStream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Run drives the connect/read/reconnect loop until ctx is cancelled or
// Close is called. It never returns a reconnect error to the caller: every
// disconnect is followed by a statusStreamReconnectDelay pause and another
// dial attempt, treating a dropped status stream as routine rather than
// fatal.
func (s *StatusStream) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			log.Warnf("status stream disconnected, reconnecting: %s", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-time.After(statusStreamReconnectDelay):
		}
	}
}

func (s *StatusStream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.dialURL(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.dedup = make(map[string]string)
	ids := make([]string, 0, len(s.watching))
	for id := range s.watching {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		if err := conn.WriteJSON(wsSubscribeMessage{Op: "subscribe", Channel: "swap.update", Args: ids}); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go s.pingLoop(ctx, conn, done)
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(statusStreamReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(statusStreamReadTimeout))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg wsStatusMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warnf("status stream: malformed frame: %s", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *StatusStream) dispatch(msg wsStatusMessage) {
	for _, a := range msg.Args {
		s.mu.Lock()
		last, seen := s.dedup[a.ID]
		if seen && last == a.Status {
			s.mu.Unlock()
			continue
		}
		s.dedup[a.ID] = a.Status
		s.mu.Unlock()

		select {
		case s.updates <- SwapStatus{ID: a.ID, Status: a.Status}:
		default:
			log.Warnf("status stream: updates channel full, dropping update for %s", a.ID)
		}
	}
}

func (s *StatusStream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(statusStreamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *StatusStream) dialURL() string {
	if s.apiKey == "" {
		return s.url
	}
	u, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	q := u.Query()
	q.Set("apiKey", s.apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}
