// Package protocol defines the chat payloads exchanged with the STOMP broker
// and the destinations they travel on. All bodies are JSON; the message kind
// is carried in the "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// MessageType discriminates chat payloads.
type MessageType string

const (
	TypeJoin  MessageType = "JOIN"
	TypeLeave MessageType = "LEAVE"
	TypeChat  MessageType = "CHAT"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeJoin, TypeLeave, TypeChat:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Destinations
// ---------------------------------------------------------------------------

const (
	topicPrefix       = "/topic/"
	historyPrefix     = "/queue/history/"
	addUserPrefix     = "/app/chat.addUser/"
	sendMessagePrefix = "/app/chat.sendMessage/"
)

// TopicDest is the live broadcast destination for an event room.
func TopicDest(eventID string) string { return topicPrefix + eventID }

// HistoryDest delivers the one-shot history replay for an event room.
func HistoryDest(eventID string) string { return historyPrefix + eventID }

// AddUserDest receives JOIN and LEAVE announcements.
func AddUserDest(eventID string) string { return addUserPrefix + eventID }

// SendMessageDest receives outgoing chat lines.
func SendMessageDest(eventID string) string { return sendMessagePrefix + eventID }

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

// ChatMessage is one entry of a room's message log, as broadcast by the
// broker on the topic destination or replayed on the history queue.
type ChatMessage struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	SenderID  string      `json:"senderId"`
	EventID   string      `json:"eventId"`
	Timestamp string      `json:"timestamp"`
	Avatar    string      `json:"avatar,omitempty"`
}

// ParseMessage decodes a single broadcast message.
func ParseMessage(data []byte) (ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ChatMessage{}, fmt.Errorf("protocol: failed to parse message: %w", err)
	}
	if !m.Type.Valid() {
		return ChatMessage{}, fmt.Errorf("protocol: unknown message type: %q", m.Type)
	}
	return m, nil
}

// ParseHistory decodes a history replay. The payload is a JSON array of
// messages; entries with an unknown type are rejected as a whole so a
// malformed replay never half-replaces a log.
func ParseHistory(data []byte) ([]ChatMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return []ChatMessage{}, nil
	}
	var msgs []ChatMessage
	if err := json.Unmarshal([]byte(trimmed), &msgs); err != nil {
		return nil, fmt.Errorf("protocol: failed to parse history: %w", err)
	}
	for i, m := range msgs {
		if !m.Type.Valid() {
			return nil, fmt.Errorf("protocol: history entry %d: unknown message type: %q", i, m.Type)
		}
	}
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return msgs, nil
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// PresenceMsg announces a participant joining or leaving a room.
type PresenceMsg struct {
	SenderID string      `json:"senderId"`
	Type     MessageType `json:"type"`
}

// OutgoingChatMsg is a chat line published by the local participant.
type OutgoingChatMsg struct {
	SenderID string      `json:"senderId"`
	Content  string      `json:"content"`
	Type     MessageType `json:"type"`
	EventID  string      `json:"eventId"`
}

// NewJoin encodes a JOIN announcement.
func NewJoin(senderID string) ([]byte, error) {
	return encode(PresenceMsg{SenderID: senderID, Type: TypeJoin})
}

// NewLeave encodes a LEAVE announcement.
func NewLeave(senderID string) ([]byte, error) {
	return encode(PresenceMsg{SenderID: senderID, Type: TypeLeave})
}

// NewChat encodes a chat line for the given room.
func NewChat(senderID, eventID, content string) ([]byte, error) {
	return encode(OutgoingChatMsg{
		SenderID: senderID,
		Content:  content,
		Type:     TypeChat,
		EventID:  eventID,
	})
}

func encode(v interface{}) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}
	return out, nil
}
