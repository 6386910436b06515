package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fieldtrack/internal/contracts"
)

const (
	wsWriteTimeout     = 5 * time.Second
	wsHandshakeTimeout = 10 * time.Second
	pollWait           = 25 * time.Second
)

// Conn is one live transport connection to the dispatch server. Emit and
// Receive frame messages as contracts.Envelope regardless of the underlying
// mode (streaming or polling).
type Conn interface {
	Emit(env contracts.Envelope) error
	Receive() (contracts.Envelope, error) // blocks until a frame or an error
	Close() error
}

// Dialer establishes a Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// ----- websocket (streaming) transport -----

type wsDialer struct {
	url string
}

// NewWebSocketDialer dials the streaming transport.
func NewWebSocketDialer(url string) Dialer {
	return &wsDialer{url: url}
}

func (d *wsDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes with a mutex and bounds each write with a
// deadline.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) Emit(env contracts.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Receive() (contracts.Envelope, error) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return contracts.Envelope{}, err
		}
		var env contracts.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			// malformed frame; skip rather than drop the connection
			continue
		}
		return env, nil
	}
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(wsWriteTimeout),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}

// ----- HTTP long-polling transport -----

type pollDialer struct {
	url    string
	client *http.Client
}

// NewPollingDialer dials the long-polling fallback. url is the channel's
// ws(s) URL; the poll endpoint is derived from it.
func NewPollingDialer(url string) Dialer {
	return &pollDialer{
		url:    pollURL(url),
		client: &http.Client{Timeout: pollWait + 5*time.Second},
	}
}

// pollURL converts ws(s)://host/path into http(s)://host/path/poll.
func pollURL(wsURL string) string {
	u := wsURL
	switch {
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + strings.TrimPrefix(u, "ws://")
	}
	return strings.TrimSuffix(u, "/") + "/poll"
}

func (d *pollDialer) Dial(ctx context.Context) (Conn, error) {
	// open a server-side poll session first so the connection attempt can
	// fail here rather than on the first emit
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/session", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll session open failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("poll session open failed: status %d", resp.StatusCode)
	}

	var opened struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&opened); err != nil {
		return nil, fmt.Errorf("poll session open failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &pollConn{
		url:       d.url,
		sessionID: opened.SessionID,
		client:    d.client,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// pollConn emits with POSTs and receives by draining a long-poll GET.
type pollConn struct {
	url       string
	sessionID string
	client    *http.Client
	ctx       context.Context
	cancel    context.CancelFunc
}

func (c *pollConn) Emit(env contracts.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", c.sessionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("poll emit failed: status %d", resp.StatusCode)
	}
	return nil
}

func (c *pollConn) Receive() (contracts.Envelope, error) {
	for {
		req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return contracts.Envelope{}, err
		}
		req.Header.Set("X-Session-ID", c.sessionID)

		resp, err := c.client.Do(req)
		if err != nil {
			return contracts.Envelope{}, err
		}

		if resp.StatusCode == http.StatusNoContent {
			// poll window elapsed with nothing queued; drain again
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return contracts.Envelope{}, fmt.Errorf("poll receive failed: status %d", resp.StatusCode)
		}

		var env contracts.Envelope
		err = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if err != nil {
			return contracts.Envelope{}, err
		}
		return env, nil
	}
}

func (c *pollConn) Close() error {
	c.cancel()
	return nil
}

// ----- streaming-with-polling-fallback dialer -----

type fallbackDialer struct {
	primary  Dialer
	fallback Dialer
}

// NewFallbackDialer tries the streaming transport first and falls back to
// long-polling for that attempt when the websocket dial fails.
func NewFallbackDialer(primary, fallback Dialer) Dialer {
	return &fallbackDialer{primary: primary, fallback: fallback}
}

func (d *fallbackDialer) Dial(ctx context.Context) (Conn, error) {
	conn, primaryErr := d.primary.Dial(ctx)
	if primaryErr == nil {
		return conn, nil
	}
	conn, fallbackErr := d.fallback.Dial(ctx)
	if fallbackErr == nil {
		return conn, nil
	}
	return nil, fmt.Errorf("all transports failed: %w (fallback: %v)", primaryErr, fallbackErr)
}
