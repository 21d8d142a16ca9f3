// Package audit records domain events in an activity log. Events travel
// through a queue so request handlers never wait on the log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"attendx/internal/queue"
)

// Topics published by the API.
const (
	TopicApplicationSubmitted = "application.submitted"
	TopicAttendanceMarked     = "attendance.marked"
	TopicProjectCreated       = "project.created"
)

// Activity is one entry of the activity log.
type Activity struct {
	ID         string         `json:"id"`
	Topic      string         `json:"topic"`
	Subject    string         `json:"subject"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Store persists activity entries.
type Store interface {
	AppendActivity(ctx context.Context, a Activity) error
	ListActivity(ctx context.Context, limit int) ([]Activity, error)
}

// Publisher turns activities into queue messages.
type Publisher struct {
	q queue.Queue
}

// NewPublisher creates a publisher writing to q.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Publish enqueues an activity. Failures are logged and otherwise ignored:
// the operation that produced the event has already succeeded.
func (p *Publisher) Publish(ctx context.Context, topic, subject string, payload map[string]any) {
	if p == nil || p.q == nil {
		return
	}
	body, err := json.Marshal(Activity{Topic: topic, Subject: subject, Payload: payload, OccurredAt: time.Now().UTC()})
	if err != nil {
		slog.Error("encode activity", "topic", topic, "err", err)
		return
	}
	if err := p.q.Publish(ctx, queue.Message{Type: topic, Body: body}); err != nil {
		slog.Warn("queue publish failed", "topic", topic, "err", err)
	}
}

// Decode parses a queue message produced by Publisher.
func Decode(msg queue.Message) (Activity, error) {
	var a Activity
	if err := json.Unmarshal(msg.Body, &a); err != nil {
		return Activity{}, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	if a.Topic == "" {
		a.Topic = msg.Type
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}
	return a, nil
}

// Consume appends every message from msgs to the store until msgs closes.
// It returns the number of activities stored.
func Consume(ctx context.Context, msgs <-chan queue.Message, store Store) int {
	stored := 0
	for msg := range msgs {
		a, err := Decode(msg)
		if err != nil {
			slog.Warn("dropping malformed event", "type", msg.Type, "err", err)
			continue
		}
		if err := store.AppendActivity(ctx, a); err != nil {
			slog.Error("append activity", "topic", a.Topic, "subject", a.Subject, "err", err)
			continue
		}
		slog.Debug("activity recorded", "topic", a.Topic, "subject", a.Subject)
		stored++
	}
	return stored
}
