package source

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
)

// KafkaSubscriberFactory allows overriding the Kafka subscriber for testing.
var KafkaSubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

// kafkaSource reads the binding's subjects as topics; the durable name is the
// consumer group, so committed offsets survive restarts.
func kafkaSource(_ context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error) {
	binding := conf.Binding()
	subscriber, err := KafkaSubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:       conf.KafkaBrokers,
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: binding.Durable,
		},
		logger,
	)
	if err != nil {
		return nil, connectError(configpkg.SourceKafka, "subscriber", err)
	}
	return newWatermillConsumer(configpkg.SourceKafka, subscriber, binding.Subjects, logger), nil
}
