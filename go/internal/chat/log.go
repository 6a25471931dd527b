// Package chat holds the shared, bounded chat buffer.
package chat

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcdev12/livepoll/go/internal/models"
)

const (
	// DefaultCapacity is the number of most recent messages retained.
	DefaultCapacity = 200
	// MaxTextLength is the longest accepted message, in characters.
	MaxTextLength = 300
)

var ErrInvalidText = errors.New("chat text must be 1-300 characters")

// Log is an append-only FIFO buffer. The oldest message is evicted once
// capacity is exceeded.
type Log struct {
	mu       sync.RWMutex
	capacity int
	messages []models.ChatMessage
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		messages: make([]models.ChatMessage, 0, capacity),
	}
}

func (l *Log) Append(msg models.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
	if over := len(l.messages) - l.capacity; over > 0 {
		// shift down instead of reslicing so the backing array does not grow forever
		copy(l.messages, l.messages[over:])
		l.messages = l.messages[:l.capacity]
	}
}

// Snapshot returns a copy of the buffer in insertion order.
func (l *Log) Snapshot() []models.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// NewMessage validates text and stamps a new message.
func NewMessage(senderID, senderName string, role models.SenderRole, text string, now time.Time) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < 1 || n > MaxTextLength {
		return models.ChatMessage{}, ErrInvalidText
	}
	return models.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		SenderRole: role,
		Text:       text,
		CreatedAt:  now,
	}, nil
}
