// Package events carries domain notifications (links, help requests,
// attention points) from the services to external consumers and to the
// websocket hub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	LinkRedeemed       = "link.redeemed"
	LinkUnlinked       = "link.unlinked"
	HelpCreated        = "help.created"
	HelpResolved       = "help.resolved"
	InterestAreaMarked = "interest_area.marked"
)

// Event is the envelope published for every domain notification. PersonID
// and ProviderID name the parties the event concerns and drive websocket
// fan-out.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	PersonID   int64                  `json:"person_id,omitempty"`
	ProviderID int64                  `json:"provider_id,omitempty"`
	ResourceID int64                  `json:"resource_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// New stamps an event with an id and the current time.
func New(typ string, personID, providerID, resourceID int64, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		PersonID:   personID,
		ProviderID: providerID,
		ResourceID: resourceID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// LogPublisher writes events to the structured log. It is the development
// default when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Int64("person_id", event.PersonID).
		Int64("provider_id", event.ProviderID).
		Int64("resource_id", event.ResourceID).
		Msg("event published")
	return nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes event and logs, rather than returns, a delivery failure.
// Services call it after their transaction has committed, when the domain
// change can no longer be rolled back.
func Emit(ctx context.Context, pub Publisher, logger zerolog.Logger, event Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Msg("event delivery failed")
	}
}

func encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}
