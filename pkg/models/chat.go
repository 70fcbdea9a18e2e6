package models

// Role identifies who produced a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat message. Metadata is free-form and is
// never exposed through AsNative.
type Message struct {
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NativeMessage is the wire shape expected by chat-completion backends
type NativeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatHistory is an ordered, append-only sequence of messages. Append and
// Concat return fresh histories and never mutate the receiver, so a history
// value can be shared across retry attempts safely.
type ChatHistory struct {
	messages []Message
}

// NewChatHistory creates a history from the given messages
func NewChatHistory(msgs ...Message) ChatHistory {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return ChatHistory{messages: out}
}

// Len returns the number of messages
func (h ChatHistory) Len() int {
	return len(h.messages)
}

// Append returns a new history with msg added at the end
func (h ChatHistory) Append(msg Message) ChatHistory {
	out := make([]Message, 0, len(h.messages)+1)
	out = append(out, h.messages...)
	out = append(out, msg)
	return ChatHistory{messages: out}
}

// Concat returns a new history with other's messages appended in order.
// When both sides carry a system message, both are kept; the renderer is
// responsible for system-uniqueness at call sites.
func (h ChatHistory) Concat(other ChatHistory) ChatHistory {
	out := make([]Message, 0, len(h.messages)+len(other.messages))
	out = append(out, h.messages...)
	out = append(out, other.messages...)
	return ChatHistory{messages: out}
}

// Messages returns a copy of the underlying sequence
func (h ChatHistory) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// AsNative strips metadata and returns the role/content pairs in order
func (h ChatHistory) AsNative() []NativeMessage {
	out := make([]NativeMessage, len(h.messages))
	for i, m := range h.messages {
		out[i] = NativeMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// LatestResponse returns the content of the last assistant message, or ""
func (h ChatHistory) LatestResponse() string {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == RoleAssistant {
			return h.messages[i].Content
		}
	}
	return ""
}

// LatestInstruction returns the content of the last user message, or ""
func (h ChatHistory) LatestInstruction() string {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == RoleUser {
			return h.messages[i].Content
		}
	}
	return ""
}
