package es

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawEvent is a stored row as read from a stream table.
type RawEvent struct {
	// CreatedAt is the parsed created_at column
	CreatedAt time.Time

	// EventID is the event_id column (UUID text)
	EventID string

	// EventName is the event_name column
	EventName string

	// Payload is the JSON-encoded payload document
	Payload []byte

	// Metadata is the JSON-encoded metadata document
	Metadata []byte

	// No is the backend-assigned row number
	No int64
}

// MessageFactory turns stored rows back into events.
// Implementations may upcast old event names or payload shapes.
type MessageFactory interface {
	CreateMessage(raw RawEvent) (Event, error)
}

// MessageFactoryFunc adapts a function to MessageFactory.
type MessageFactoryFunc func(raw RawEvent) (Event, error)

// CreateMessage implements MessageFactory.
func (f MessageFactoryFunc) CreateMessage(raw RawEvent) (Event, error) {
	return f(raw)
}

// JSONMessageFactory decodes payload and metadata as JSON documents.
// The row number is added to the metadata as _position unless already present.
type JSONMessageFactory struct{}

// CreateMessage implements MessageFactory.
func (JSONMessageFactory) CreateMessage(raw RawEvent) (Event, error) {
	id, err := uuid.Parse(raw.EventID)
	if err != nil {
		return Event{}, fmt.Errorf("failed to parse event ID %q: %w", raw.EventID, err)
	}

	payload := map[string]interface{}{}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return Event{}, fmt.Errorf("failed to decode payload of event %s: %w", raw.EventID, err)
		}
	}

	metadata := map[string]interface{}{}
	if len(raw.Metadata) > 0 {
		if err := json.Unmarshal(raw.Metadata, &metadata); err != nil {
			return Event{}, fmt.Errorf("failed to decode metadata of event %s: %w", raw.EventID, err)
		}
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if _, ok := metadata[MetadataPosition]; !ok {
		metadata[MetadataPosition] = raw.No
	}

	return Event{
		UUID:      id,
		Name:      raw.EventName,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: raw.CreatedAt,
	}, nil
}
