package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Run("ConfigError carries op and cause", func(t *testing.T) {
		cause := errors.New("no such directory")
		err := NewConfigError("dataDir", cause)

		assert.Contains(t, err.Error(), "nestq: config: dataDir")
		assert.ErrorIs(t, err, cause)

		var ce *ConfigError
		assert.ErrorAs(t, error(err), &ce)
		assert.Equal(t, "dataDir", ce.Op)
	})

	t.Run("ConfigError without cause still reads", func(t *testing.T) {
		err := &ConfigError{Op: "duplicate queue name"}
		assert.Equal(t, "nestq: config: duplicate queue name", err.Error())
	})

	t.Run("ValidationError names the parameter", func(t *testing.T) {
		err := &ValidationError{Param: "priority", Value: 12}
		assert.Contains(t, err.Error(), "priority")
		assert.Contains(t, err.Error(), "12")
	})

	t.Run("ValidationError can wrap a sentinel", func(t *testing.T) {
		err := &ValidationError{Param: "command", Value: "<nil>", Err: ErrNilCommand}
		assert.ErrorIs(t, err, ErrNilCommand)
	})

	t.Run("QueueNotFoundError names the queue", func(t *testing.T) {
		err := &QueueNotFoundError{Queue: "emails"}
		assert.Equal(t, `nestq: queue "emails" not found`, err.Error())
	})

	t.Run("SendError unwraps to its cause", func(t *testing.T) {
		cause := errors.New("broker gone")
		err := &SendError{Queue: "emails", Type: "email.welcome", Err: cause}

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "email.welcome")
		assert.Contains(t, err.Error(), `"emails"`)
	})

	t.Run("SendError wrapping ErrNestClosed matches both ways", func(t *testing.T) {
		err := fmt.Errorf("send: %w", &SendError{Queue: "emails", Err: ErrNestClosed})

		var se *SendError
		assert.ErrorAs(t, err, &se)
		assert.ErrorIs(t, err, ErrNestClosed)
	})
}
