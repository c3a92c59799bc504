package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is a domain event produced by the application. Payload is opaque to
// the gateway beyond being a JSON object.
type Event struct {
	Kind      string         `json:"kind" validate:"required,max=128"`
	Topic     string         `json:"topic" validate:"required,max=128"`
	Payload   map[string]any `json:"payload" validate:"required"`
	EventID   string         `json:"eventId,omitempty" validate:"omitempty,max=128"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

var eventValidator = validator.New()

// ParseEvent decodes and validates a raw event envelope.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks the required envelope fields.
func (e Event) Validate() error {
	if err := eventValidator.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(e.Topic) != e.Topic || strings.TrimSpace(e.Kind) == "" {
		return fmt.Errorf("%w: kind and topic must not be blank or padded", ErrInvalidEvent)
	}
	return nil
}

// normalize fills in the event id and timestamp when the producer left them out.
func (e Event) normalize(now time.Time) Event {
	if e.EventID == "" {
		e.EventID = newEventID(now)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	return e
}

func newEventID(now time.Time) string {
	return fmt.Sprintf("evt-%d-%s", now.UnixMilli(), uuid.New().String()[:8])
}
