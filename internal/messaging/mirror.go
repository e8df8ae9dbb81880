package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lyfcircle/circle/internal/protocol"
)

// Mirror event kinds.
const (
	KindMessage = "message"
	KindHistory = "history"
)

// MirrorEvent is the payload published on a chat mirror subject.
type MirrorEvent struct {
	Kind     string                 `json:"kind"`
	EventID  string                 `json:"event_id"`
	Messages []protocol.ChatMessage `json:"messages"`
}

// ParseMirrorEvent decodes a mirrored chat event.
func ParseMirrorEvent(data []byte) (MirrorEvent, error) {
	var e MirrorEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return MirrorEvent{}, fmt.Errorf("messaging: parse mirror event: %w", err)
	}
	if e.Kind != KindMessage && e.Kind != KindHistory {
		return MirrorEvent{}, fmt.Errorf("messaging: unknown mirror event kind %q", e.Kind)
	}
	return e, nil
}

// Publisher is the subset of Bus the mirror needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Mirror republishes a chat session's log changes to NATS so other local
// processes can follow the room. Publish failures are logged and never
// affect the session.
type Mirror struct {
	eventID string
	pub     Publisher
	log     zerolog.Logger
}

// NewMirror creates a mirror for one event room.
func NewMirror(eventID string, pub Publisher, log zerolog.Logger) *Mirror {
	return &Mirror{eventID: eventID, pub: pub, log: log}
}

// MessageAppended publishes a single live message.
func (m *Mirror) MessageAppended(msg protocol.ChatMessage) {
	m.publish(KindMessage, []protocol.ChatMessage{msg})
}

// HistoryReplaced publishes the replayed history.
func (m *Mirror) HistoryReplaced(msgs []protocol.ChatMessage) {
	m.publish(KindHistory, msgs)
}

func (m *Mirror) publish(kind string, msgs []protocol.ChatMessage) {
	if msgs == nil {
		msgs = []protocol.ChatMessage{}
	}
	data, err := json.Marshal(MirrorEvent{Kind: kind, EventID: m.eventID, Messages: msgs})
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to encode mirror event")
		return
	}
	if err := m.pub.Publish(ChatSubject(m.eventID), data); err != nil {
		m.log.Warn().Err(err).Str("event_id", m.eventID).Msg("failed to mirror chat event")
	}
}
