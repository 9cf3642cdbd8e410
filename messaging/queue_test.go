package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFactory() (Listener, error) {
	return ListenerFunc(func(ctx context.Context, d *Delivery) error { return nil }), nil
}

func TestQueueConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  QueueConfig
		wantErr string
	}{
		{
			name:   "minimal declare-only queue",
			config: QueueConfig{Name: "audit"},
		},
		{
			name:   "queue with listeners and factory",
			config: QueueConfig{Name: "emails", Listeners: 3, Factory: noopFactory},
		},
		{
			name:   "dashes and underscores are fine",
			config: QueueConfig{Name: "image_resize-v2"},
		},
		{
			name:    "empty name",
			config:  QueueConfig{},
			wantErr: "empty",
		},
		{
			name:    "name with spaces",
			config:  QueueConfig{Name: "my queue"},
			wantErr: "may only contain",
		},
		{
			name:    "name with dots",
			config:  QueueConfig{Name: "emails.prod"},
			wantErr: "may only contain",
		},
		{
			name:    "negative listener count",
			config:  QueueConfig{Name: "emails", Listeners: -1, Factory: noopFactory},
			wantErr: "negative",
		},
		{
			name:    "listeners without factory",
			config:  QueueConfig{Name: "emails", Listeners: 2},
			wantErr: "no factory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestQueueRegistry(t *testing.T) {
	t.Run("resolves what was added", func(t *testing.T) {
		r := NewQueueRegistry()
		require.NoError(t, r.Add(QueueConfig{Name: "emails", Listeners: 2, Factory: noopFactory}))

		c, ok := r.Resolve("emails")
		require.True(t, ok)
		assert.Equal(t, 2, c.Listeners)

		_, ok = r.Resolve("payments")
		assert.False(t, ok)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		r := NewQueueRegistry()
		require.NoError(t, r.Add(QueueConfig{Name: "emails"}))
		assert.ErrorContains(t, r.Add(QueueConfig{Name: "emails"}), "duplicate")
	})

	t.Run("rejects invalid configs", func(t *testing.T) {
		r := NewQueueRegistry()
		assert.Error(t, r.Add(QueueConfig{Name: ""}))
		assert.Zero(t, r.Len())
	})

	t.Run("preserves registration order", func(t *testing.T) {
		r := NewQueueRegistry()
		for _, name := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, r.Add(QueueConfig{Name: name}))
		}
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Names())

		configs := r.Configs()
		require.Len(t, configs, 3)
		assert.Equal(t, "zeta", configs[0].Name)
	})
}
