package source

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
)

// GoChannelFactory allows overriding the in-process pub/sub for testing.
var GoChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

const injectQueueSize = 64

var errNoSubjects = errors.New("no subjects to inject into")

// ChannelConsumer is the in-process source. Payloads handed to Inject are
// delivered on the first subject of the binding, in the order they were
// injected.
type ChannelConsumer struct {
	*watermillConsumer
	publisher message.Publisher
	queue     chan []byte
}

func channelSource(_ context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error) {
	pubSub := GoChannelFactory(gochannel.Config{
		OutputChannelBuffer:            int64(conf.FetchBatch),
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return NewChannelConsumer(pubSub, conf.Binding().Subjects, logger), nil
}

// NewChannelConsumer builds a channel source around pubSub. Injected payloads
// are published one at a time; pubSub must block publishes until the
// subscriber acks for delivery to keep injection order.
func NewChannelConsumer(pubSub *gochannel.GoChannel, subjects []string, logger watermill.LoggerAdapter) *ChannelConsumer {
	c := &ChannelConsumer{
		watermillConsumer: newWatermillConsumer(configpkg.SourceChannel, pubSub, subjects, logger),
		publisher:         pubSub,
		queue:             make(chan []byte, injectQueueSize),
	}
	if len(c.topics) > 0 {
		go c.publishLoop()
	}
	return c
}

// Inject queues payload for publication. It blocks only while the queue is
// full and fails once the consumer is closed.
func (c *ChannelConsumer) Inject(payload []byte) error {
	if len(c.topics) == 0 {
		return errNoSubjects
	}
	select {
	case <-c.closed:
		return errspkg.ErrShuttingDown
	default:
	}
	select {
	case c.queue <- payload:
		return nil
	case <-c.closed:
		return errspkg.ErrShuttingDown
	}
}

func (c *ChannelConsumer) publishLoop() {
	for {
		select {
		case payload := <-c.queue:
			if err := c.publisher.Publish(c.topics[0], message.NewMessage(watermill.NewUUID(), payload)); err != nil {
				c.logger.Error("Failed to publish injected payload", err, watermill.LogFields{"topic": c.topics[0]})
			}
		case <-c.closed:
			return
		}
	}
}
