// Package source binds the relay to the append-only event log it consumes.
//
// Every source kind produces the same contract: an ordered, infinite channel
// of RawMessage values, each acknowledged exactly once by the relay after it
// has been decoded and published. Redelivery of unacknowledged messages is
// left to the source's own ack timeout.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
)

// RawMessage is one undecoded message from the source.
type RawMessage interface {
	Payload() []byte
	// Ack acknowledges the message. Failures are *errors.AckError.
	Ack() error
}

// Consumer is a bound durable consumer.
type Consumer interface {
	// Messages starts the stream. It can be called once; a second call fails
	// with ErrConsumerStreamed. The channel is closed when ctx is cancelled or
	// the consumer is closed.
	Messages(ctx context.Context) (<-chan RawMessage, error)
	Close() error
}

// Injector is implemented by in-process sources that accept payloads directly.
type Injector interface {
	Inject(payload []byte) error
}

// Builder creates a Consumer for one source kind.
type Builder func(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error)

var builders = map[string]Builder{
	configpkg.SourceJetStream: jetStreamSource,
	configpkg.SourceChannel:   channelSource,
	configpkg.SourceNATS:      natsSource,
	configpkg.SourceKafka:     kafkaSource,
	configpkg.SourceRabbitMQ:  rabbitMQSource,
	configpkg.SourceAWS:       awsSource,
	configpkg.SourceHTTP:      httpSource,
}

// Kinds lists the supported source kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for kind := range builders {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Bind creates the consumer selected by conf.SourceKind. Any failure is a
// *errors.ConnectError; the relay cannot run without its source.
func Bind(ctx context.Context, conf *configpkg.Config, logger loggingpkg.ServiceLogger) (Consumer, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	kind := strings.ToLower(conf.SourceKind)
	if kind == "" {
		kind = configpkg.SourceJetStream
	}
	build, ok := builders[kind]
	if !ok {
		return nil, &errspkg.ConnectError{Source: kind, Err: errspkg.ErrUnknownSource}
	}

	binding := conf.Binding()
	consumer, err := build(ctx, conf, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		var connectErr *errspkg.ConnectError
		if errors.As(err, &connectErr) {
			return nil, err
		}
		return nil, &errspkg.ConnectError{Source: kind, Err: err}
	}

	logger.Info("Event source bound", loggingpkg.LogFields{
		"source":   kind,
		"durable":  binding.Durable,
		"subjects": binding.Subjects,
		"stream":   binding.Stream,
	})
	return consumer, nil
}

func connectError(kind, action string, err error) error {
	return &errspkg.ConnectError{Source: kind, Err: fmt.Errorf("%s: %w", action, err)}
}
