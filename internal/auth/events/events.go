// Package events publishes auth lifecycle notifications to downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"log"
)

// Topics emitted by the auth service.
const (
	TopicSignIn  = "auth.signIn"
	TopicSignOut = "auth.signOut"
)

// SessionEvent is the payload for sign-in and sign-out notifications.
type SessionEvent struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Bus delivers auth events. Publishing is fire-and-forget: delivery
// problems are handled inside the bus and never fail the auth flow.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any)
}

// LogBus writes events to the process log. It is the default bus when no
// outbox is configured.
type LogBus struct {
	Logger *log.Logger
}

// Publish logs the event.
func (b LogBus) Publish(_ context.Context, topic string, payload any) {
	logger := b.Logger
	if logger == nil {
		logger = log.Default()
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("event %s: marshal payload: %v", topic, err)
		return
	}
	logger.Printf("event %s: %s", topic, encoded)
}

// Enqueuer is the slice of the outbox store the bus needs.
type Enqueuer interface {
	EnqueueOutboxEvent(ctx context.Context, topic, payload string) error
}

// OutboxBus persists events to the outbox table for asynchronous delivery.
// Enqueue failures are logged and swallowed.
type OutboxBus struct {
	Outbox Enqueuer
	Logger *log.Logger
}

// Publish enqueues the event.
func (b OutboxBus) Publish(ctx context.Context, topic string, payload any) {
	logger := b.Logger
	if logger == nil {
		logger = log.Default()
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("event %s: marshal payload: %v", topic, err)
		return
	}
	if b.Outbox == nil {
		logger.Printf("event %s: outbox is not configured", topic)
		return
	}
	if err := b.Outbox.EnqueueOutboxEvent(ctx, topic, string(encoded)); err != nil {
		logger.Printf("event %s: enqueue: %v", topic, err)
	}
}
