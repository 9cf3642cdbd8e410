package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire body of every message. It carries the registered
// type tag alongside the serialized command so the receiving side can
// reconstruct the concrete type without any out-of-band knowledge.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an already-serialized payload with a fresh ID and the
// current UTC time.
func NewEnvelope(typeName string, payload json.RawMessage) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      typeName,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Validate checks the fields a received envelope must carry before it can
// be dispatched.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope missing id")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope missing type")
	}
	return nil
}
