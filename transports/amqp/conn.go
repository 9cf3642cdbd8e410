package amqp

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// managedConn supervises one AMQP connection. When the broker drops it,
// the watcher goroutine re-dials with exponential backoff until the
// connection is back or the manager is closed for good.
type managedConn struct {
	url  string
	role string

	logger         *slog.Logger
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	maxReconnects  int

	// onReconnect runs after a dropped connection has been re-established,
	// outside the manager's lock.
	onReconnect func()

	mu     sync.RWMutex
	conn   *amqp091.Connection
	closed bool

	done chan struct{}
}

func newManagedConn(url, role string, cfg *config) *managedConn {
	return &managedConn{
		url:            url,
		role:           role,
		logger:         cfg.logger,
		reconnectDelay: cfg.reconnectDelay,
		dialTimeout:    cfg.dialTimeout,
		maxReconnects:  cfg.maxReconnects,
		done:           make(chan struct{}),
	}
}

// connect establishes the initial connection and starts the watcher.
func (m *managedConn) connect() error {
	conn, err := m.dial()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	go m.watch(conn)
	m.logger.Info("broker connection established",
		"role", m.role,
		"url", sanitizeURL(m.url))
	return nil
}

func (m *managedConn) dial() (*amqp091.Connection, error) {
	conn, err := amqp091.DialConfig(m.url, amqp091.Config{
		Dial:       amqp091.DefaultDial(m.dialTimeout),
		Properties: amqp091.Table{"connection_name": "nestq-" + m.role},
	})
	if err != nil {
		return nil, fmt.Errorf("amqp: dial %s: %w", sanitizeURL(m.url), err)
	}
	return conn, nil
}

// watch blocks until conn dies. A graceful local close ends the watcher;
// anything else starts the reconnect loop.
func (m *managedConn) watch(conn *amqp091.Connection) {
	reason, ok := <-conn.NotifyClose(make(chan *amqp091.Error, 1))
	if !ok || reason == nil {
		return
	}
	if m.isClosed() {
		return
	}

	m.logger.Warn("broker connection lost",
		"role", m.role,
		"error", reason)
	m.reconnect()
}

func (m *managedConn) reconnect() {
	for attempt := 1; ; attempt++ {
		if m.maxReconnects >= 0 && attempt > m.maxReconnects {
			m.logger.Error("reconnect attempts exhausted",
				"role", m.role,
				"attempts", m.maxReconnects)
			return
		}

		delay := backoffDelay(m.reconnectDelay, attempt)
		select {
		case <-m.done:
			return
		case <-time.After(delay):
		}

		conn, err := m.dial()
		if err != nil {
			m.logger.Warn("reconnect attempt failed",
				"role", m.role,
				"attempt", attempt,
				"error", err)
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()

		m.logger.Info("broker connection restored",
			"role", m.role,
			"attempts", attempt)
		go m.watch(conn)
		if m.onReconnect != nil {
			m.onReconnect()
		}
		return
	}
}

// backoffDelay doubles the base delay per attempt, caps it, and spreads
// the result over a 25% jitter band so a herd of clients does not
// re-dial in lockstep.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxReconnectDelay {
			delay = maxReconnectDelay
			break
		}
	}
	return time.Duration(float64(delay) * (0.75 + rand.Float64()*0.5))
}

// channel opens a fresh channel on the live connection.
func (m *managedConn) channel() (*amqp091.Channel, error) {
	m.mu.RLock()
	conn, closed := m.conn, m.closed
	m.mu.RUnlock()

	if closed || conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return conn.Channel()
}

func (m *managedConn) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// close shuts the connection down for good; the watcher and any pending
// reconnect loop exit.
func (m *managedConn) close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	close(m.done)
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
