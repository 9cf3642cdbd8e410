package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Run("assigns unique IDs and UTC timestamps", func(t *testing.T) {
		before := time.Now().UTC()
		e1 := NewEnvelope("test.command", json.RawMessage(`{"a":1}`))
		e2 := NewEnvelope("test.command", json.RawMessage(`{"a":1}`))
		after := time.Now().UTC()

		assert.NotEmpty(t, e1.ID)
		assert.NotEqual(t, e1.ID, e2.ID)
		assert.Equal(t, "test.command", e1.Type)
		assert.False(t, e1.Timestamp.Before(before))
		assert.False(t, e1.Timestamp.After(after))
		assert.Equal(t, time.UTC, e1.Timestamp.Location())
	})

	t.Run("round-trips through JSON", func(t *testing.T) {
		e := NewEnvelope("test.command", json.RawMessage(`{"to":"x@y.z"}`))
		data, err := json.Marshal(e)
		require.NoError(t, err)

		var got Envelope
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, e.Type, got.Type)
		assert.JSONEq(t, string(e.Payload), string(got.Payload))
		assert.True(t, e.Timestamp.Equal(got.Timestamp))
	})
}

func TestEnvelopeValidate(t *testing.T) {
	t.Run("accepts a complete envelope", func(t *testing.T) {
		e := NewEnvelope("test.command", nil)
		assert.NoError(t, e.Validate())
	})

	t.Run("rejects missing id", func(t *testing.T) {
		e := &Envelope{Type: "test.command"}
		assert.Error(t, e.Validate())
	})

	t.Run("rejects missing type", func(t *testing.T) {
		e := &Envelope{ID: "abc"}
		assert.Error(t, e.Validate())
	})
}
