// Package fluxnotify is a real-time notification relay. It consumes domain
// events from a durable, filtered consumer on an append-only event log (NATS
// JetStream by default), decodes them and fans them out to every connected
// WebSocket and Server-Sent Events client.
//
// Each message is acknowledged exactly once, after it has been decoded and
// published to the fan-out hub. Undecodable messages are logged and acked so
// they never block the stream. Slow clients skip what they could not keep up
// with instead of slowing anyone else down.
//
// A minimal setup fills Config, creates a Service and calls Start:
//
//	svc, err := fluxnotify.NewService(ctx, &fluxnotify.Config{
//		NATSURL:        "nats://localhost:4222",
//		StreamName:     "FLUX",
//		ConsumerName:   "notify-relay",
//		SubjectFilters: []string{"flux.message.>"},
//	}, logger, fluxnotify.ServiceDependencies{})
//	if err != nil {
//		return err
//	}
//	return svc.Start(ctx)
//
// # Sources
//
// Config.SourceKind selects where events come from:
//   - nats-jetstream: durable pull consumer on a JetStream stream
//   - channel: in-process Go channels, fed through Service.Inject
//   - nats: core NATS with a queue group per durable
//   - kafka: consumer group per durable
//   - rabbitmq: durable AMQP queues
//   - aws: SNS topics fanned into SQS queues, LocalStack supported
//   - http: producers POST raw events to the ingest address
//
// # Clients
//
// WebSocket clients connect to <PathPrefix>/notify/ws and may send
// {"subscribe":{"stream_ids":[...]}} to narrow stream-scoped events. SSE
// clients connect to <PathPrefix>/notify/ and receive everything.
package fluxnotify
