package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldtrack/internal/contracts"
	"fieldtrack/internal/logger"
)

// ErrNotConnected is returned by Emit when the channel has no live,
// affiliated transport.
var ErrNotConnected = errors.New("dispatch channel is not connected")

// Config tunes the reconnect behaviour. The delay is fixed, not backed off,
// matching the dispatcher's published client settings.
type Config struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Handler receives the data payload of one inbound named event.
type Handler func(data json.RawMessage)

// Manager owns the real-time channel to the dispatch server: connect,
// affiliate, reconnect, emit, receive. At most one live transport exists per
// Manager.
type Manager struct {
	dialer Dialer
	cfg    Config
	logger *logger.Logger

	mu     sync.Mutex
	state  State
	techID string
	conn   Conn
	gen    int // bumped on every install/teardown; stale read loops check it
	subs   map[string][]Handler
	onDown []func()
}

// NewManager constructs a Manager in the Disconnected state.
func NewManager(dialer Dialer, cfg Config, log *logger.Logger) *Manager {
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = time.Second
	}
	return &Manager{
		dialer: dialer,
		cfg:    cfg,
		logger: log,
		state:  StateDisconnected,
		subs:   make(map[string][]Handler),
	}
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a handler for an inbound named event. Handlers run on
// the channel's read goroutine and must not block.
func (m *Manager) Subscribe(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[event] = append(m.subs[event], h)
}

// OnDisconnect registers a teardown hook invoked synchronously from
// Disconnect. Hooks must be idempotent.
func (m *Manager) OnDisconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDown = append(m.onDown, fn)
}

// Connect establishes the channel and announces the technician identity.
// Calling Connect while a transport is live is a no-op.
func (m *Manager) Connect(ctx context.Context, techID string) error {
	m.mu.Lock()
	if m.state.Live() {
		m.mu.Unlock()
		m.logger.Debug(ctx, "channel_already_live", "Connect called on a live channel", map[string]any{
			"state": m.state.String(),
		})
		return nil
	}
	m.state = StateConnecting
	m.techID = techID
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.logger.Error(ctx, "channel_connect_failed", "Failed to dial dispatch channel", err, nil)
		return fmt.Errorf("channel connect failed: %w", err)
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// Disconnect raced the dial
		m.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("channel connect aborted: %w", ErrNotConnected)
	}
	m.gen++
	gen := m.gen
	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()

	// announce identity before any domain event becomes attributable
	if err := m.affiliate(conn, techID); err != nil {
		m.teardown(gen)
		m.logger.Error(ctx, "channel_affiliate_failed", "Failed to announce identity", err, map[string]any{
			"tech_id": techID,
		})
		return fmt.Errorf("channel affiliate failed: %w", err)
	}

	m.logger.Info(ctx, "channel_connected", "Dispatch channel connected", map[string]any{
		"tech_id": techID,
	})

	go m.readLoop(conn, gen)
	return nil
}

// Disconnect drives the channel to Disconnected from any state and runs the
// registered teardown hooks synchronously. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.state = StateDisconnected
	conn := m.conn
	m.conn = nil
	hooks := append([]func(){}, m.onDown...)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for _, fn := range hooks {
		fn()
	}

	m.logger.Info(context.Background(), "channel_disconnected", "Dispatch channel disconnected", nil)
}

// Emit sends one named event. Fails with ErrNotConnected unless the channel
// is Connected.
func (m *Manager) Emit(ctx context.Context, event string, payload any) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	env, err := contracts.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("failed to frame %s event: %w", event, err)
	}
	if err := conn.Emit(env); err != nil {
		return fmt.Errorf("failed to emit %s event: %w", event, err)
	}
	return nil
}

// --- internals ---

func (m *Manager) affiliate(conn Conn, techID string) error {
	env, err := contracts.NewEnvelope(contracts.EventAffiliate, contracts.Affiliate{TechID: techID})
	if err != nil {
		return err
	}
	return conn.Emit(env)
}

// teardown closes the conn installed at gen if it is still current.
func (m *Manager) teardown(gen int) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.state = StateDisconnected
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// readLoop drains inbound frames until the transport drops, then hands off
// to the reconnect loop unless the drop was deliberate.
func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		env, err := conn.Receive()
		if err != nil {
			m.mu.Lock()
			stale := gen != m.gen
			m.mu.Unlock()
			if stale {
				// superseded by Disconnect or a newer connection
				return
			}
			m.logger.Error(context.Background(), "channel_transport_dropped", "Transport dropped; reconnecting", err, nil)
			m.reconnect()
			return
		}
		m.dispatch(env)
	}
}

// reconnect retries with bounded attempts and a fixed delay, re-affiliating
// on success. Exhausting the attempts surfaces a terminal trackingError to
// subscribers; it does not run the Disconnect teardown hooks.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.state = StateReconnecting
	old := m.conn
	m.conn = nil
	techID := m.techID
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	ctx := context.Background()
	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(m.cfg.ReconnectDelay)

		m.mu.Lock()
		if m.state != StateReconnecting {
			// Disconnect won the race
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			m.logger.Error(ctx, "channel_reconnect_failed", "Reconnect attempt failed", err, map[string]any{
				"attempt":  attempt,
				"attempts": m.cfg.ReconnectAttempts,
			})
			continue
		}

		// the server holds no affiliation across a transport drop, so the
		// identity is announced again on every reconnection
		if err := m.affiliate(conn, techID); err != nil {
			_ = conn.Close()
			m.logger.Error(ctx, "channel_reaffiliate_failed", "Failed to re-announce identity", err, map[string]any{
				"attempt": attempt,
			})
			continue
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.gen++
		gen := m.gen
		m.conn = conn
		m.state = StateConnected
		m.mu.Unlock()

		m.logger.Info(ctx, "channel_reconnected", "Dispatch channel reconnected", map[string]any{
			"attempt": attempt,
			"tech_id": techID,
		})
		go m.readLoop(conn, gen)
		return
	}

	m.mu.Lock()
	terminal := m.state == StateReconnecting
	if terminal {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if terminal {
		m.logger.Error(ctx, "channel_reconnect_exhausted", "Reconnect attempts exhausted; channel is down", ErrNotConnected, map[string]any{
			"attempts": m.cfg.ReconnectAttempts,
		})
		m.dispatchError("connection lost: reconnect attempts exhausted")
	}
}

// dispatch fans one inbound envelope out to its subscribers.
func (m *Manager) dispatch(env contracts.Envelope) {
	m.mu.Lock()
	handlers := append([]Handler{}, m.subs[env.Event]...)
	m.mu.Unlock()

	if len(handlers) == 0 {
		m.logger.Debug(context.Background(), "channel_event_unhandled", "Inbound event has no subscribers", map[string]any{
			"event": env.Event,
		})
		return
	}
	for _, h := range handlers {
		h(env.Data)
	}
}

// dispatchError delivers a synthetic trackingError to subscribers so callers
// waiting on channel health learn about terminal failures.
func (m *Manager) dispatchError(message string) {
	data, err := json.Marshal(contracts.TrackingError{Message: message})
	if err != nil {
		return
	}
	m.dispatch(contracts.Envelope{Event: contracts.EventTrackingError, Data: data})
}
