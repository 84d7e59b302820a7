package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
)

func testLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig(kind string) *configpkg.Config {
	conf := configpkg.Config{
		SourceKind:     kind,
		ConsumerName:   "notify-relay",
		SubjectFilters: []string{"flux.message"},
		StreamName:     "FLUX",
	}.WithDefaults()
	return &conf
}

func receive(t *testing.T, messages <-chan RawMessage) RawMessage {
	t.Helper()
	select {
	case msg, ok := <-messages:
		require.True(t, ok, "message channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestBindRequiresConfigAndLogger(t *testing.T) {
	_, err := Bind(context.Background(), nil, testLogger())
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = Bind(context.Background(), testConfig(configpkg.SourceChannel), nil)
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestBindUnknownSource(t *testing.T) {
	_, err := Bind(context.Background(), testConfig("carrier-pigeon"), testLogger())

	var connectErr *errspkg.ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, "carrier-pigeon", connectErr.Source)
	assert.ErrorIs(t, err, errspkg.ErrUnknownSource)
}

func TestBindWrapsBuilderFailures(t *testing.T) {
	orig := NATSConnect
	t.Cleanup(func() { NATSConnect = orig })

	boom := errors.New("no servers available")
	NATSConnect = func(string, ...nats.Option) (*nats.Conn, error) { return nil, boom }

	_, err := Bind(context.Background(), testConfig(""), testLogger())

	var connectErr *errspkg.ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, configpkg.SourceJetStream, connectErr.Source)
	assert.ErrorIs(t, err, boom)
}

func TestKindsCoversEverySource(t *testing.T) {
	assert.ElementsMatch(t, []string{
		configpkg.SourceJetStream,
		configpkg.SourceChannel,
		configpkg.SourceNATS,
		configpkg.SourceKafka,
		configpkg.SourceRabbitMQ,
		configpkg.SourceAWS,
		configpkg.SourceHTTP,
	}, Kinds())
}

func TestChannelSourceInjectAndAck(t *testing.T) {
	consumer, err := Bind(context.Background(), testConfig(configpkg.SourceChannel), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	injector, ok := consumer.(Injector)
	require.True(t, ok, "channel source should accept injected payloads")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := consumer.Messages(ctx)
	require.NoError(t, err)

	require.NoError(t, injector.Inject([]byte("first")))
	msg := receive(t, messages)
	assert.Equal(t, []byte("first"), msg.Payload())
	require.NoError(t, msg.Ack())

	require.NoError(t, injector.Inject([]byte("second")))
	msg = receive(t, messages)
	assert.Equal(t, []byte("second"), msg.Payload())
	require.NoError(t, msg.Ack())
}

func TestChannelSourcePreservesInjectionOrder(t *testing.T) {
	consumer, err := Bind(context.Background(), testConfig(configpkg.SourceChannel), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })
	injector := consumer.(Injector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := consumer.Messages(ctx)
	require.NoError(t, err)

	const total = 500
	injected := make(chan error, 1)
	go func() {
		for i := range total {
			if err := injector.Inject([]byte(strconv.Itoa(i))); err != nil {
				injected <- err
				return
			}
		}
		injected <- nil
	}()

	for i := range total {
		msg := receive(t, messages)
		require.Equal(t, strconv.Itoa(i), string(msg.Payload()), "delivery %d out of order", i)
		require.NoError(t, msg.Ack())
	}
	require.NoError(t, <-injected)
}

func TestChannelInjectAfterClose(t *testing.T) {
	consumer, err := Bind(context.Background(), testConfig(configpkg.SourceChannel), testLogger())
	require.NoError(t, err)
	require.NoError(t, consumer.Close())

	err = consumer.(Injector).Inject([]byte("late"))
	assert.ErrorIs(t, err, errspkg.ErrShuttingDown)
}

func TestMessagesCanOnlyBeStreamedOnce(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewChannelConsumer(pubSub, []string{"flux.message"}, nil)
	t.Cleanup(func() { _ = consumer.Close() })

	_, err := consumer.Messages(context.Background())
	require.NoError(t, err)

	_, err = consumer.Messages(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrConsumerStreamed)
}

func TestChannelInjectWithoutSubjects(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewChannelConsumer(pubSub, nil, nil)
	assert.ErrorIs(t, consumer.Inject([]byte("x")), errNoSubjects)
}

func TestWatermillConsumerMergesTopics(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewWatermillConsumer(pubSub, []string{"a", "b"}, nil)
	t.Cleanup(func() { _ = consumer.Close() })

	messages, err := consumer.Messages(context.Background())
	require.NoError(t, err)

	require.NoError(t, pubSub.Publish("a", message.NewMessage(watermill.NewUUID(), []byte("from-a"))))
	require.NoError(t, pubSub.Publish("b", message.NewMessage(watermill.NewUUID(), []byte("from-b"))))

	got := map[string]bool{}
	for range 2 {
		msg := receive(t, messages)
		got[string(msg.Payload())] = true
		require.NoError(t, msg.Ack())
	}
	assert.Equal(t, map[string]bool{"from-a": true, "from-b": true}, got)
}

func TestWatermillConsumerClosesOnCancel(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewWatermillConsumer(pubSub, []string{"a"}, nil)
	t.Cleanup(func() { _ = consumer.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := consumer.Messages(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-messages:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("message channel not closed after cancel")
	}
}

func TestWatermillMessageAckAfterNack(t *testing.T) {
	msg := message.NewMessage(watermill.NewUUID(), []byte("x"))
	msg.Nack()

	err := watermillMessage{msg: msg}.Ack()

	var ackErr *errspkg.AckError
	require.ErrorAs(t, err, &ackErr)
	assert.ErrorIs(t, err, errAlreadyNacked)
}

type fakeSubscriber struct {
	mu       sync.Mutex
	topics   []string
	closed   bool
	failWith error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.topics = append(f.topics, topic)
	return make(chan *message.Message), nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestWatermillConsumerSubscribeFailure(t *testing.T) {
	sub := &fakeSubscriber{failWith: errors.New("denied")}
	consumer := newWatermillConsumer(configpkg.SourceKafka, sub, []string{"a"}, nil)

	_, err := consumer.Messages(context.Background())

	var connectErr *errspkg.ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, configpkg.SourceKafka, connectErr.Source)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestWatermillConsumerCloseIsIdempotent(t *testing.T) {
	sub := &fakeSubscriber{}
	calls := 0
	consumer := newWatermillConsumer("test", sub, []string{"a"}, nil, closerFunc(func() error {
		calls++
		return nil
	}))

	require.NoError(t, consumer.Close())
	require.NoError(t, consumer.Close())
	assert.True(t, sub.closed)
	assert.Equal(t, 1, calls)
}
