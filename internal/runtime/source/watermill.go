package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
)

var errAlreadyNacked = errors.New("message was nacked before ack")

// watermillConsumer adapts a watermill subscriber to the Consumer contract.
// Each topic is subscribed separately and merged into one channel; ordering
// is preserved per topic.
type watermillConsumer struct {
	kind       string
	subscriber message.Subscriber
	topics     []string
	logger     watermill.LoggerAdapter
	closers    []io.Closer
	// afterSubscribe runs once every topic is subscribed.
	afterSubscribe func() error

	streamed  atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWatermillConsumer wraps an existing watermill subscriber. Closing the
// consumer closes the subscriber.
func NewWatermillConsumer(subscriber message.Subscriber, topics []string, logger watermill.LoggerAdapter) Consumer {
	return newWatermillConsumer("watermill", subscriber, topics, logger)
}

func newWatermillConsumer(kind string, subscriber message.Subscriber, topics []string, logger watermill.LoggerAdapter, closers ...io.Closer) *watermillConsumer {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &watermillConsumer{
		kind:       kind,
		subscriber: subscriber,
		topics:     append([]string(nil), topics...),
		logger:     logger,
		closers:    closers,
		closed:     make(chan struct{}),
	}
}

func (c *watermillConsumer) Messages(ctx context.Context) (<-chan RawMessage, error) {
	if !c.streamed.CompareAndSwap(false, true) {
		return nil, errspkg.ErrConsumerStreamed
	}

	inputs := make([]<-chan *message.Message, 0, len(c.topics))
	for _, topic := range c.topics {
		messages, err := c.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return nil, connectError(c.kind, "subscribe "+topic, err)
		}
		inputs = append(inputs, messages)
	}
	if c.afterSubscribe != nil {
		if err := c.afterSubscribe(); err != nil {
			return nil, connectError(c.kind, "start", err)
		}
	}

	out := make(chan RawMessage)
	var wg sync.WaitGroup
	for _, in := range inputs {
		wg.Add(1)
		go func(in <-chan *message.Message) {
			defer wg.Done()
			c.forward(ctx, in, out)
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (c *watermillConsumer) forward(ctx context.Context, in <-chan *message.Message, out chan<- RawMessage) {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- watermillMessage{msg: msg}:
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

func (c *watermillConsumer) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		close(c.closed)
		if err := c.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
		for _, closer := range c.closers {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

type watermillMessage struct {
	msg *message.Message
}

func (m watermillMessage) Payload() []byte { return m.msg.Payload }

func (m watermillMessage) Ack() error {
	if !m.msg.Ack() {
		return &errspkg.AckError{Err: errAlreadyNacked}
	}
	return nil
}
