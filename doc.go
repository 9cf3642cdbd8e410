// Copyright 2025 Nestq Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nestq embeds a durable command queue inside the host process.
// No broker to operate, no network listener, no credentials: the queue
// server runs in-process and persists to a local data directory.
//
// Work is modeled as self-executing commands. A command type is
// registered once under a stable type tag, then instances of it are sent
// at a named queue; listener slots on that queue reconstruct each command
// and call its Execute method. Slots consume sequentially, slots on the
// same queue compete for messages, and slots on different queues run
// concurrently.
//
//	type SendWelcomeEmail struct {
//		To string `json:"to"`
//	}
//
//	func (c *SendWelcomeEmail) Execute(ctx context.Context) error {
//		return smtp.Deliver(ctx, c.To, welcomeBody)
//	}
//
//	nestq.RegisterCommand("email.sendWelcome", func() nestq.Command {
//		return &SendWelcomeEmail{}
//	})
//
//	nest, err := nestq.Open(ctx, "/var/lib/myapp/nestq", []nestq.QueueConfig{
//		{Name: "emails", Listeners: 5},
//	})
//	if err != nil {
//		return err
//	}
//	defer nest.Stop()
//
//	err = nest.Send(ctx, "emails", &SendWelcomeEmail{To: "io@example.com"},
//		nestq.WithPersistent(true), nestq.WithTTL(time.Hour))
//
// Open runs against the embedded broker. OpenWithEngine runs the same
// programming model against an external AMQP broker through the
// transports/amqp engine.
package nestq
