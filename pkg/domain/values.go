package domain

// ---------------------------------------------------------------------------
// Shared value objects — used across bounded contexts
// ---------------------------------------------------------------------------

// MessageRole represents who sent a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

func (mr MessageRole) String() string { return string(mr) }

// ---------------------------------------------------------------------------

// SessionState represents the chat transport session's lifecycle. There is
// exactly one session per process; the state is rebuilt on every start.
type SessionState string

const (
	StateDisconnected    SessionState = "disconnected"
	StateAwaitingPairing SessionState = "awaiting_pairing"
	StateConnected       SessionState = "connected"
	StateLoggedOut       SessionState = "logged_out"
)

func (ss SessionState) String() string { return string(ss) }

// ---------------------------------------------------------------------------

// Metadata is a generic key-value map for extensible properties.
type Metadata map[string]string

// Get returns a metadata value, or empty string if not present.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Set writes a metadata key-value pair. Initializes the map if nil.
func (m *Metadata) Set(key, value string) {
	if *m == nil {
		*m = make(Metadata)
	}
	(*m)[key] = value
}
