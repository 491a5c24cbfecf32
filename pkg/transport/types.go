// Package transport owns the single chat-transport session: its pairing /
// connect / reconnect lifecycle and the outbound send primitives. The
// vendor SDK sits behind the Session port; this package never imports it.
package transport

import (
	"context"
	"time"
)

// Message is one inbound platform message, flattened by the session adapter.
// Kind is the single-key type discriminator of the vendor payload (e.g.
// "conversation", "buttonsResponseMessage", "imageMessage"); Payload keeps
// the vendor-specific body for handlers that need to dig deeper.
type Message struct {
	ID        string                 `json:"id"`
	From      string                 `json:"from"` // sender identifier, raw transport form
	Kind      string                 `json:"kind"`
	Text      string                 `json:"text,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	FromMe    bool                   `json:"from_me"`
	Timestamp time.Time              `json:"timestamp"`
}

// Button is one quick-reply definition rendered by the chat client. The ID
// comes back verbatim in the structured reply when tapped.
type Button struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SendOptions carries the optional decorations of an interactive send.
type SendOptions struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Footer   string `json:"footer,omitempty"`
}

// SessionEvents are the callbacks a Session fires as its lifecycle advances.
type SessionEvents struct {
	// OnQR delivers a fresh pairing challenge payload.
	OnQR func(payload string)
	// OnConnected fires once the session is established, with the
	// authenticated identity.
	OnConnected func(identity string)
	// OnDisconnected fires when the session closes. loggedOut distinguishes
	// an explicit logout from a transient drop.
	OnDisconnected func(loggedOut bool)
	// OnMessages delivers an inbound message batch.
	OnMessages func(batch []Message)
}

// Session is the port to the chat transport SDK. Connect registers the
// callbacks and starts the session; it returns once the connection attempt
// is underway, with lifecycle progress reported through the callbacks.
type Session interface {
	Connect(ctx context.Context, events SessionEvents) error
	SendText(ctx context.Context, toJID, text string) error
	SendButtons(ctx context.Context, toJID, text string, buttons []Button, opts SendOptions) error
	Logout(ctx context.Context) error
	Close() error
}

// Sender is the outbound surface the message handlers depend on.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendInteractive(ctx context.Context, to, text string, buttons []Button, opts SendOptions) error
}

// BatchHandler consumes one inbound batch. The manager invokes it for every
// OnMessages callback.
type BatchHandler func(ctx context.Context, batch []Message)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error is a typed error for the transport context.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotConnected Error = "chat session is not connected"
	ErrLoggedOut    Error = "chat session is logged out; restart to re-pair"
)
