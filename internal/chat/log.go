package chat

import (
	"sync"

	"github.com/lyfcircle/circle/internal/protocol"
)

// Log is the ordered message log of one chat session. Entries keep the
// order in which they were appended; nothing is reordered or deduplicated.
// It is goroutine-safe.
type Log struct {
	mu   sync.RWMutex
	msgs []protocol.ChatMessage
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds msg at the end of the log.
func (l *Log) Append(msg protocol.ChatMessage) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

// Replace discards every entry and installs msgs in their given order.
func (l *Log) Replace(msgs []protocol.ChatMessage) {
	l.mu.Lock()
	l.msgs = append([]protocol.ChatMessage(nil), msgs...)
	l.mu.Unlock()
}

// Snapshot returns a copy of the log, oldest first. It never returns nil.
func (l *Log) Snapshot() []protocol.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]protocol.ChatMessage, len(l.msgs))
	copy(result, l.msgs)
	return result
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
