package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/glimte/nestq/contracts"
)

// DefaultCompressionThreshold is the body size, in bytes, at which the
// codec starts compressing. Envelope JSON below this size is sent raw.
const DefaultCompressionThreshold = 32 * 1024

// Codec frames commands for the wire: command -> JSON payload -> envelope
// -> envelope JSON -> optional zstd. Decode reverses every step.
type Codec struct {
	registry  *TypeRegistry
	threshold int
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCompressionThreshold sets the body size at which compression kicks
// in. Zero disables compression entirely.
func WithCompressionThreshold(n int) CodecOption {
	return func(c *Codec) {
		c.threshold = n
	}
}

// NewCodec creates a codec over the given registry.
func NewCodec(registry *TypeRegistry, opts ...CodecOption) *Codec {
	c := &Codec{
		registry:  registry,
		threshold: DefaultCompressionThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry this codec resolves type tags against.
func (c *Codec) Registry() *TypeRegistry { return c.registry }

// EncodeCommand serializes cmd into a publishable body. The returned
// encoding is "" for plain JSON or EncodingZstd when the body was
// compressed; it must travel with the message.
func (c *Codec) EncodeCommand(cmd contracts.Command) (body []byte, encoding string, err error) {
	typeName, err := c.registry.NameOf(cmd)
	if err != nil {
		return nil, "", err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, "", fmt.Errorf("serialization: marshal %s: %w", typeName, err)
	}

	env := contracts.NewEnvelope(typeName, payload)
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, "", fmt.Errorf("serialization: marshal envelope: %w", err)
	}

	if c.threshold > 0 && len(raw) >= c.threshold {
		if compressed, ok := compressBody(raw); ok {
			return compressed, EncodingZstd, nil
		}
	}
	return raw, "", nil
}

// DecodeEnvelope unwraps a body back to its envelope without constructing
// the command.
func (c *Codec) DecodeEnvelope(body []byte, encoding string) (*contracts.Envelope, error) {
	raw := body
	switch encoding {
	case "":
	case EncodingZstd:
		var err error
		raw, err = decompressBody(body)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("serialization: unknown content encoding %q", encoding)
	}

	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("serialization: unmarshal envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("serialization: %w", err)
	}
	return &env, nil
}

// DecodeCommand reconstructs the concrete command a body carries: envelope
// type tag -> registered factory -> fresh value -> payload unmarshal. The
// envelope is returned alongside for logging and correlation.
func (c *Codec) DecodeCommand(body []byte, encoding string) (contracts.Command, *contracts.Envelope, error) {
	env, err := c.DecodeEnvelope(body, encoding)
	if err != nil {
		return nil, nil, err
	}

	cmd, err := c.registry.Create(env.Type)
	if err != nil {
		return nil, env, err
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, env, fmt.Errorf("serialization: unmarshal %s payload: %w", env.Type, err)
		}
	}
	return cmd, env, nil
}
