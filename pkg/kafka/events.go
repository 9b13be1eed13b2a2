package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every event published by a service.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

// SchemaVersion is stamped on envelopes built by NewEnvelope.
const SchemaVersion = "1"

// NewEnvelope marshals data into an envelope. An empty id gets a fresh UUID.
func NewEnvelope(id, eventType, source string, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Envelope{
		ID:            id,
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Data:          raw,
	}, nil
}

// Headers returns the record headers consumers route on.
func (e *Envelope) Headers() map[string]string {
	return map[string]string{
		"event_type":     e.Type,
		"source":         e.Source,
		"schema_version": e.SchemaVersion,
	}
}
