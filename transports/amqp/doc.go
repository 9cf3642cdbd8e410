// Package amqp runs the nest against an external AMQP 0-9-1 broker such
// as RabbitMQ instead of the embedded one.
//
// The engine keeps two managed connections, one for consumer sessions and
// one for producer sessions, and re-dials a dropped connection forever by
// default. Queues are declared durable with the full 0-9 priority range,
// so delivery mode, priority and expiry all keep their broker-enforced
// meaning rather than the advisory one the embedded engine gives them.
package amqp
