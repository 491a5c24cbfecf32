package transport

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/logger"
)

const component = "transport"

// jidSuffix is the transport's addressing domain for direct chats.
const jidSuffix = "@s.whatsapp.net"

// Status is a snapshot of the session lifecycle for the admin surface.
type Status struct {
	State       domain.SessionState `json:"state"`
	Identity    string              `json:"identity,omitempty"`
	QRAvailable bool                `json:"qr_available"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Options tunes the manager.
type Options struct {
	CountryCode    string
	ReconnectDelay time.Duration
	// MaxReconnects bounds consecutive failed reconnect attempts; after the
	// bound is hit the manager parks until Restart(). Zero means unbounded.
	MaxReconnects int
}

// Manager owns exactly one Session and drives its state machine:
//
//	Disconnected → AwaitingPairing → Connected → Disconnected (drop, retry)
//	Connected → LoggedOut (explicit logout; terminal until Restart)
//
// Reconnection after an unexpected drop waits a fixed delay; only an
// explicit logout halts it.
type Manager struct {
	session Session
	bus     domain.EventBus
	opts    Options
	handler BatchHandler

	mu       sync.RWMutex
	state    domain.SessionState
	identity string
	qrPNG    string // base64 PNG of the current pairing challenge

	sessionID   domain.EntityID
	disconnects chan bool
	restarts    chan struct{}
}

// NewManager wires a manager around a session port.
func NewManager(session Session, bus domain.EventBus, opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "62"
	}
	return &Manager{
		session:     session,
		bus:         bus,
		opts:        opts,
		state:       domain.StateDisconnected,
		sessionID:   domain.NewID(),
		disconnects: make(chan bool, 4),
		restarts:    make(chan struct{}, 1),
	}
}

// SetBatchHandler registers the inbound batch consumer. Must be called
// before Start.
func (m *Manager) SetBatchHandler(handler BatchHandler) { m.handler = handler }

// Start runs the connect/reconnect loop until ctx is cancelled.
// Call in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			m.session.Close()
			return
		default:
		}

		if err := m.session.Connect(ctx, m.callbacks(ctx)); err != nil {
			attempts++
			logger.ErrorCF(component, "session connect failed", map[string]interface{}{
				"attempt": attempts,
				"error":   err.Error(),
			})
			if m.parked(ctx, attempts) {
				attempts = 0
				continue
			}
			select {
			case <-ctx.Done():
				m.session.Close()
				return
			case <-time.After(m.opts.ReconnectDelay):
			}
			continue
		}

		// Block until the session drops, the operator logs out, or we stop.
		select {
		case <-ctx.Done():
			m.session.Close()
			return
		case loggedOut := <-m.disconnects:
			if loggedOut {
				m.setState(domain.StateLoggedOut, "")
				m.bus.Publish(domain.NewEvent(domain.EventSessionLoggedOut, m.sessionID, nil))
				logger.InfoC(component, "session logged out; waiting for restart")
				select {
				case <-ctx.Done():
					return
				case <-m.restarts:
					attempts = 0
					continue
				}
			}
			// A drop after an established session starts a fresh attempt
			// streak; the bound counts consecutive failures only.
			if m.GetStatus().State == domain.StateConnected {
				attempts = 0
			}
			m.setState(domain.StateDisconnected, "")
			m.bus.Publish(domain.NewEvent(domain.EventSessionDisconnected, m.sessionID, nil))
			attempts++
			logger.WarnCF(component, "session dropped; reconnecting", map[string]interface{}{
				"attempt": attempts,
				"delay":   m.opts.ReconnectDelay.String(),
			})
		}

		if m.parked(ctx, attempts) {
			attempts = 0
			continue
		}

		select {
		case <-ctx.Done():
			m.session.Close()
			return
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// parked checks the reconnect bound; when exceeded it waits for an explicit
// Restart and reports true so the caller resets its attempt counter.
func (m *Manager) parked(ctx context.Context, attempts int) bool {
	if m.opts.MaxReconnects <= 0 || attempts < m.opts.MaxReconnects {
		return false
	}
	logger.ErrorCF(component, "reconnect bound exhausted; waiting for restart", map[string]interface{}{
		"attempts": attempts,
	})
	select {
	case <-ctx.Done():
		return false
	case <-m.restarts:
		return true
	}
}

func (m *Manager) callbacks(ctx context.Context) SessionEvents {
	return SessionEvents{
		OnQR: func(payload string) {
			png, err := qrcode.Encode(payload, qrcode.Medium, 256)
			if err != nil {
				logger.ErrorCF(component, "failed to render pairing QR", map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
			encoded := base64.StdEncoding.EncodeToString(png)

			m.mu.Lock()
			m.state = domain.StateAwaitingPairing
			m.identity = ""
			m.qrPNG = encoded
			m.mu.Unlock()

			m.bus.Publish(domain.NewEvent(domain.EventQRGenerated, m.sessionID, map[string]interface{}{
				"payload":   encoded,
				"timestamp": time.Now().UTC(),
			}))
			m.publishStatus()
		},
		OnConnected: func(identity string) {
			m.setState(domain.StateConnected, identity)
			m.bus.Publish(domain.NewEvent(domain.EventSessionConnected, m.sessionID, map[string]string{
				"identity": identity,
			}))
			logger.InfoCF(component, "session connected", map[string]interface{}{
				"identity": identity,
			})
		},
		OnDisconnected: func(loggedOut bool) {
			select {
			case m.disconnects <- loggedOut:
			default:
			}
		},
		OnMessages: func(batch []Message) {
			for _, msg := range batch {
				m.bus.Publish(domain.NewEvent(domain.EventMessageReceived, m.sessionID, map[string]interface{}{
					"from":      msg.From,
					"kind":      msg.Kind,
					"text":      msg.Text,
					"from_me":   msg.FromMe,
					"timestamp": msg.Timestamp,
				}))
			}
			if m.handler != nil {
				m.handler(ctx, batch)
			}
		},
	}
}

// setState updates the snapshot and broadcasts connection.status. Entering
// Connected clears any stored pairing payload.
func (m *Manager) setState(state domain.SessionState, identity string) {
	m.mu.Lock()
	m.state = state
	m.identity = identity
	if state == domain.StateConnected {
		m.qrPNG = ""
	}
	m.mu.Unlock()
	m.publishStatus()
}

func (m *Manager) publishStatus() {
	status := m.GetStatus()
	m.bus.Publish(domain.NewEvent(domain.EventConnectionStatus, m.sessionID, status))
}

// GetStatus returns the current lifecycle snapshot.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:       m.state,
		Identity:    m.identity,
		QRAvailable: m.qrPNG != "",
		Timestamp:   time.Now().UTC(),
	}
}

// QRImage returns the current pairing challenge as a base64 PNG, if one is
// pending.
func (m *Manager) QRImage() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qrPNG, m.qrPNG != ""
}

// SendText delivers a plain text message. Fails unless Connected.
func (m *Manager) SendText(ctx context.Context, to, text string) error {
	if err := m.requireConnected(); err != nil {
		m.publishSent(to, text, err)
		return err
	}
	err := m.session.SendText(ctx, m.toJID(to), text)
	m.publishSent(to, text, err)
	return err
}

// SendInteractive delivers a quick-reply prompt. Fails unless Connected.
func (m *Manager) SendInteractive(ctx context.Context, to, text string, buttons []Button, opts SendOptions) error {
	if err := m.requireConnected(); err != nil {
		m.publishSent(to, text, err)
		return err
	}
	err := m.session.SendButtons(ctx, m.toJID(to), text, buttons, opts)
	m.publishSent(to, text, err)
	return err
}

// Logout explicitly terminates the session. The state machine lands in
// LoggedOut via the session's disconnect callback; re-pairing requires
// Restart.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.requireConnected(); err != nil {
		return err
	}
	return m.session.Logout(ctx)
}

// Restart signals a parked or logged-out manager to reinitialize.
func (m *Manager) Restart() {
	select {
	case m.restarts <- struct{}{}:
	default:
	}
}

func (m *Manager) requireConnected() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.state {
	case domain.StateConnected:
		return nil
	case domain.StateLoggedOut:
		return ErrLoggedOut
	default:
		return ErrNotConnected
	}
}

// toJID normalizes a recipient into the transport's addressing form.
func (m *Manager) toJID(to string) string {
	return order.NormalizePhone(to, m.opts.CountryCode) + jidSuffix
}

func (m *Manager) publishSent(to, text string, err error) {
	data := map[string]interface{}{
		"to":        to,
		"text":      text,
		"success":   err == nil,
		"timestamp": time.Now().UTC(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	m.bus.Publish(domain.NewEvent(domain.EventMessageSent, m.sessionID, data))
}

// Ensure Manager satisfies the handlers' outbound surface.
var _ Sender = (*Manager)(nil)
