package source

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
)

var (
	AmqpConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	AmqpSubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
)

// rabbitMQSource binds a durable queue per subject exchange. Queue names
// carry the durable as suffix.
func rabbitMQSource(_ context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error) {
	binding := conf.Binding()
	amqpConfig := amqp.NewDurablePubSubConfig(
		conf.RabbitMQURL,
		amqp.GenerateQueueNameTopicNameWithSuffix("-"+binding.Durable),
	)

	conn, err := AmqpConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   conf.RabbitMQURL,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return nil, connectError(configpkg.SourceRabbitMQ, "connect", err)
	}

	subscriber, err := AmqpSubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = conn.Close()
		return nil, connectError(configpkg.SourceRabbitMQ, "subscriber", err)
	}
	return newWatermillConsumer(configpkg.SourceRabbitMQ, subscriber, binding.Subjects, logger, conn), nil
}
