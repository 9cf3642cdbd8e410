// Package embedded runs the broker inside the application process. It is
// the default engine: a NATS JetStream server started in-process with no
// listening socket, storage rooted at a caller-supplied data directory,
// and exactly two in-process client connections (one for consumers, one
// for producers).
//
// The whole bootstrap is all-or-nothing. New validates the data
// directory, lays out the storage subdirectories, starts the server,
// waits for readiness, and opens both connections; any failure tears
// down whatever had started and returns an error, never a half-started
// engine.
//
// Queues map to file-backed work-queue streams, one per logical queue,
// with explicit acks and per-message TTLs. Delivery mode and priority
// are validated upstream and travel as message headers; the stream is
// durable regardless of mode, and priority does not reorder deliveries
// here (the AMQP engine does both natively).
package embedded
