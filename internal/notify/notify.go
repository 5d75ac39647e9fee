// Package notify announces published briefings on NATS.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/events"
	"github.com/book-expert/nightly-brief/internal/core"
	"github.com/google/uuid"
)

// ErrSubjectEmpty indicates a notifier without a subject.
var ErrSubjectEmpty = errors.New("notify subject cannot be empty")

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier publishes an events.AudioChunkCreatedEvent for every
// published briefing. The briefing is a single chunk; the run id is the
// workflow id.
type NatsNotifier struct {
	publisher Publisher
	subject   string
}

// NewNatsNotifier creates a notifier publishing on subject.
func NewNatsNotifier(publisher Publisher, subject string) (*NatsNotifier, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsNotifier{publisher: publisher, subject: subject}, nil
}

// Notify publishes the event for n.
func (p *NatsNotifier) Notify(_ context.Context, n core.Notification) error {
	event := &events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  n.Timestamp,
			WorkflowID: n.RunID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		AudioKey:   n.AudioKey,
		PageNumber: 1,
		TotalPages: 1,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal brief event: %w", err)
	}

	err = p.publisher.Publish(p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish brief event on %s: %w", p.subject, err)
	}

	return nil
}
