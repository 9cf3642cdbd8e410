// Package messaging contains the engine-agnostic core of nestq: the
// Engine seam the broker transports implement, the CommandProducer that
// validates and publishes, the ListenerPool that provisions queues and
// runs listener slots, and the CommandDispatcher that reconstructs and
// executes incoming commands.
//
// # Engine seam
//
// Everything in this package talks to the broker through the Engine
// interface. An Engine owns exactly two broker connections: all consumer
// sessions derive from one, all producer sessions from the other. The
// embedded JetStream engine is the default; the AMQP engine targets an
// existing RabbitMQ. See the transports packages.
//
// # Delivery semantics
//
// A queue runs as many listener slots as its configuration asks for. One
// slot sees its deliveries sequentially; distinct slots run concurrently
// and never process the same message twice. Deliveries are acknowledged
// after the listener returns, whether or not it returned an error: a
// listener error is logged and the message is not redelivered by the
// broker. Retries, when wanted, are layered in-process with
// NewRetryMiddleware.
//
// # Sending
//
// Send validates delivery mode, priority, TTL and the command's
// registration, resolves the queue, and only then touches the broker,
// using a fresh producer session per send:
//
//	err := producer.Send(ctx, "emails", &SendWelcomeEmail{To: "x@y.z"},
//	    messaging.WithPersistent(true),
//	    messaging.WithPriority(7),
//	    messaging.WithTTL(time.Minute),
//	)
//
// Failures before the broker is touched are *contracts.ValidationError or
// *contracts.QueueNotFoundError; failures after are *contracts.SendError.
package messaging
