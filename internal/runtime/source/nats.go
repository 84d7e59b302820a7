package source

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
)

// NATSSubscriberFactory allows overriding the core NATS subscriber for testing.
var NATSSubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

// natsSource consumes core NATS subjects through a queue group named after
// the durable so that replicas share the load.
func natsSource(_ context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error) {
	binding := conf.Binding()
	subscriber, err := NATSSubscriberFactory(
		nats.SubscriberConfig{
			URL:              conf.NATSURL,
			QueueGroupPrefix: binding.Durable,
			SubscribersCount: 1,
			Unmarshaler:      &nats.NATSMarshaler{},
			JetStream:        nats.JetStreamConfig{Disabled: true},
		},
		logger,
	)
	if err != nil {
		return nil, connectError(configpkg.SourceNATS, "subscriber", err)
	}
	return newWatermillConsumer(configpkg.SourceNATS, subscriber, binding.Subjects, logger), nil
}
