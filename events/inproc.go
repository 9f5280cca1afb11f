package events

import (
	"context"
	"sync"
)

// Message is one published payload as seen by an in-process subscriber.
type Message struct {
	Topic   string
	Payload []byte
}

// InProcExchange is a channel-backed Exchange for embedded use and tests. It
// fans every publish out to all subscribers synchronously.
type InProcExchange struct {
	mu          sync.RWMutex
	subscribers []func(Message)
	closed      bool
}

// NewInProcExchange creates an in-process exchange.
func NewInProcExchange() *InProcExchange {
	return &InProcExchange{}
}

// Subscribe registers a listener for every published message.
func (e *InProcExchange) Subscribe(fn func(Message)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Publish delivers to all subscribers.
func (e *InProcExchange) Publish(_ context.Context, topic string, payload []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExchangeClosed
	}
	for _, fn := range e.subscribers {
		fn(Message{Topic: topic, Payload: payload})
	}
	return nil
}

// Close marks the exchange closed; later publishes fail.
func (e *InProcExchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
