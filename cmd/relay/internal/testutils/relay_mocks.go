package testutils

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MockReader feeds a fixed sequence of Kafka messages, then blocks until
// the context is cancelled, like a quiet real consumer would.
type MockReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func NewMockReader(msgs ...kafka.Message) *MockReader {
	return &MockReader{msgs: msgs}
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.msgs) > 0 {
		msg := m.msgs[0]
		m.msgs = m.msgs[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *MockReader) Close() error { return nil }
