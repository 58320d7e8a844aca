// Package kafka streams audit events to Kafka topics, one per event
// category. Reads are served from a local store that receives every event
// first.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zkgate/internal/platform/kafka/producer"
	audit "zkgate/pkg/platform/audit"
)

const defaultTopicPrefix = "zkgate.audit"

// Producer is the subset of the Kafka producer the store needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Store writes events to Kafka after recording them in a local store.
type Store struct {
	producer    Producer
	local       audit.Store
	topicPrefix string
}

// Option configures a Store.
type Option func(*Store)

// WithTopicPrefix sets the topic prefix. Events go to "<prefix>.<category>".
func WithTopicPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.topicPrefix = prefix
		}
	}
}

// New creates a Store. Both producer and local are required.
func New(p Producer, local audit.Store, opts ...Option) *Store {
	if p == nil {
		panic("kafka audit store requires a producer")
	}
	if local == nil {
		panic("kafka audit store requires a local store")
	}
	s := &Store{producer: p, local: local, topicPrefix: defaultTopicPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type eventJSON struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Category     string    `json:"category"`
	CredentialID string    `json:"credential_id,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Append records event locally, then publishes it. Events about the same
// credential share a partition key so consumers see them in order.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if err := s.local.Append(ctx, event); err != nil {
		return err
	}

	category := audit.AuditEvent(event.Action).Category()
	payload, err := json.Marshal(eventJSON{
		Timestamp:    event.Timestamp.UTC(),
		Action:       event.Action,
		Category:     string(category),
		CredentialID: event.CredentialID,
		Outcome:      event.Outcome,
		Reason:       event.Reason,
		RequestID:    event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	key := event.CredentialID
	if key == "" {
		key = event.RequestID
	}
	msg := &producer.Message{
		Topic: s.Topic(category),
		Value: payload,
		Headers: map[string]string{
			"action":   event.Action,
			"category": string(category),
		},
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := s.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// Topic returns the topic events of category are written to.
func (s *Store) Topic(category audit.EventCategory) string {
	return s.topicPrefix + "." + string(category)
}

func (s *Store) ListByCredential(ctx context.Context, credentialID string) ([]audit.Event, error) {
	return s.local.ListByCredential(ctx, credentialID)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.local.ListRecent(ctx, limit)
}
