package amqp

import (
	"errors"
	"net/url"
)

// ErrNotConnected is returned when a channel is requested while the
// managed connection is down or already closed.
var ErrNotConnected = errors.New("amqp: not connected")

// sanitizeURL strips credentials from a broker URL before it reaches a
// log line or an error message.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
