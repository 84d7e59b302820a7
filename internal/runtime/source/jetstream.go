package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/nats-io/nats.go"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
)

// fetchRetryDelay spaces out pulls after an unexpected fetch error.
const fetchRetryDelay = 500 * time.Millisecond

// NATSConnect allows overriding the connection for testing.
var NATSConnect = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

// puller is the part of *nats.Subscription the fetch loop needs.
type puller interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
	Unsubscribe() error
}

func jetStreamSource(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error) {
	const kind = configpkg.SourceJetStream
	binding := conf.Binding()

	nc, err := NATSConnect(conf.NATSURL, nats.Name("fluxnotify-"+binding.Durable))
	if err != nil {
		return nil, connectError(kind, "connect", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, connectError(kind, "jetstream context", err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:       binding.Durable,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       conf.AckWait,
		MaxDeliver:    conf.MaxDeliver,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
	// Servers before 2.10 only understand the single filter field.
	if len(binding.Subjects) == 1 {
		consumerCfg.FilterSubject = binding.Subjects[0]
	} else {
		consumerCfg.FilterSubjects = binding.Subjects
	}

	if _, err := js.AddConsumer(binding.Stream, consumerCfg, nats.Context(ctx)); err != nil {
		if _, err = js.UpdateConsumer(binding.Stream, consumerCfg, nats.Context(ctx)); err != nil {
			nc.Close()
			return nil, connectError(kind, "create consumer", err)
		}
	}

	sub, err := js.PullSubscribe("", binding.Durable, nats.Bind(binding.Stream, binding.Durable))
	if err != nil {
		nc.Close()
		return nil, connectError(kind, "bind consumer", err)
	}

	c := newJetStreamConsumer(sub, conf.FetchBatch, conf.FetchMaxWait, logger)
	c.conn = nc
	return c, nil
}

// jetStreamConsumer pulls batches from a durable JetStream consumer and hands
// messages out one at a time.
type jetStreamConsumer struct {
	sub     puller
	conn    *nats.Conn
	batch   int
	maxWait time.Duration
	logger  watermill.LoggerAdapter

	streamed  atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

func newJetStreamConsumer(sub puller, batch int, maxWait time.Duration, logger watermill.LoggerAdapter) *jetStreamConsumer {
	if batch <= 0 {
		batch = configpkg.DefaultFetchBatch
	}
	if maxWait <= 0 {
		maxWait = configpkg.DefaultFetchMaxWait
	}
	return &jetStreamConsumer{
		sub:     sub,
		batch:   batch,
		maxWait: maxWait,
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

func (c *jetStreamConsumer) Messages(ctx context.Context) (<-chan RawMessage, error) {
	if !c.streamed.CompareAndSwap(false, true) {
		return nil, errspkg.ErrConsumerStreamed
	}
	out := make(chan RawMessage)
	go c.fetchMessages(ctx, out)
	return out, nil
}

func (c *jetStreamConsumer) fetchMessages(ctx context.Context, out chan<- RawMessage) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		msgs, err := c.sub.Fetch(c.batch, nats.MaxWait(c.maxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			c.logger.Error("Failed to fetch messages", err, nil)
			select {
			case <-time.After(fetchRetryDelay):
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case out <- jetStreamMessage{msg: msg}:
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
		}
	}
}

func (c *jetStreamConsumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.sub.Unsubscribe()
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			err = nil
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
	return err
}

type jetStreamMessage struct {
	msg *nats.Msg
}

func (m jetStreamMessage) Payload() []byte { return m.msg.Data }

func (m jetStreamMessage) Ack() error {
	if err := m.msg.Ack(); err != nil {
		return &errspkg.AckError{Err: err}
	}
	return nil
}
