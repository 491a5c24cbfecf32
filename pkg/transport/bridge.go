package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pasarlink/gateway/pkg/logger"
)

// BridgeSession implements the Session port over a WebSocket link to the
// chat-transport sidecar. The sidecar owns the vendor SDK and speaks a small
// JSON frame protocol:
//
//	sidecar → gateway: {"type":"qr","payload":"…"}
//	                   {"type":"connected","identity":"628…"}
//	                   {"type":"disconnected","logged_out":false}
//	                   {"type":"messages","messages":[…]}
//	gateway → sidecar: {"type":"send_text","to":"…","text":"…"}
//	                   {"type":"send_buttons","to":"…","text":"…","buttons":[…],…}
//	                   {"type":"logout"}
type BridgeSession struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

type bridgeFrame struct {
	Type      string    `json:"type"`
	Payload   string    `json:"payload,omitempty"`
	Identity  string    `json:"identity,omitempty"`
	LoggedOut bool      `json:"logged_out,omitempty"`
	Messages  []Message `json:"messages,omitempty"`

	To      string   `json:"to,omitempty"`
	Text    string   `json:"text,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
	Title   string   `json:"title,omitempty"`
	Footer  string   `json:"footer,omitempty"`
}

// NewBridgeSession creates a session adapter for the sidecar at url.
func NewBridgeSession(url string) *BridgeSession {
	return &BridgeSession{url: url}
}

// Connect dials the sidecar and starts the read loop. Lifecycle progress is
// reported through the callbacks; the read loop exits fire OnDisconnected.
func (s *BridgeSession) Connect(ctx context.Context, events SessionEvents) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial transport bridge: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn, events)
	return nil
}

func (s *BridgeSession) readLoop(conn *websocket.Conn, events SessionEvents) {
	loggedOut := false
	defer func() {
		conn.Close()
		if events.OnDisconnected != nil {
			events.OnDisconnected(loggedOut)
		}
	}()

	for {
		var frame bridgeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Type {
		case "qr":
			if events.OnQR != nil {
				events.OnQR(frame.Payload)
			}
		case "connected":
			if events.OnConnected != nil {
				events.OnConnected(frame.Identity)
			}
		case "disconnected":
			loggedOut = frame.LoggedOut
			return
		case "messages":
			if events.OnMessages != nil && len(frame.Messages) > 0 {
				events.OnMessages(frame.Messages)
			}
		default:
			logger.DebugCF(component, "unknown bridge frame", map[string]interface{}{
				"type": frame.Type,
			})
		}
	}
}

// SendText forwards a plain text send to the sidecar.
func (s *BridgeSession) SendText(ctx context.Context, toJID, text string) error {
	return s.write(bridgeFrame{Type: "send_text", To: toJID, Text: text})
}

// SendButtons forwards an interactive send to the sidecar.
func (s *BridgeSession) SendButtons(ctx context.Context, toJID, text string, buttons []Button, opts SendOptions) error {
	return s.write(bridgeFrame{
		Type:    "send_buttons",
		To:      toJID,
		Text:    text,
		Buttons: buttons,
		Title:   opts.Title,
		Footer:  opts.Footer,
	})
}

// Logout asks the sidecar to terminate the paired session.
func (s *BridgeSession) Logout(ctx context.Context) error {
	return s.write(bridgeFrame{Type: "logout"})
}

// Close tears down the bridge link.
func (s *BridgeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *BridgeSession) write(frame bridgeFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode bridge frame: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

var _ Session = (*BridgeSession)(nil)
