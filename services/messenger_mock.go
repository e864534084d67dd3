package services

import (
	"context"
	"sync"
)

// SentMessage is a message captured by MockMessenger.
type SentMessage struct {
	ChatID int64
	Text   string
}

// MockMessenger records messages instead of sending them
type MockMessenger struct {
	Err error

	mu   sync.RWMutex
	sent []SentMessage
}

func (m *MockMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Text: text})
	m.mu.Unlock()
	return nil
}

func (m *MockMessenger) Sent() []SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SentMessage(nil), m.sent...)
}
