package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
	"github.com/drblury/fluxnotify/internal/runtime/event"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
	"github.com/drblury/fluxnotify/internal/runtime/shutdown"
	"github.com/drblury/fluxnotify/internal/runtime/source"
)

const waitFor = 3 * time.Second

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func channelConfig() *configpkg.Config {
	return &configpkg.Config{
		SourceKind:     configpkg.SourceChannel,
		ConsumerName:   "notify-relay",
		SubjectFilters: []string{"flux.message"},
		HTTPAddress:    "127.0.0.1:0",
		MetricsEnabled: true,
	}
}

type runningService struct {
	svc    *Service
	signal *shutdown.Signal
	done   chan error
	base   string
}

func startService(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) *runningService {
	t.Helper()
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.Shutdown == nil {
		deps.Shutdown = shutdown.New(nil)
	}

	svc, err := NewService(context.Background(), conf, newTestLogger(), deps)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()

	select {
	case <-svc.Ready():
	case err := <-done:
		t.Fatalf("service stopped before ready: %v", err)
	case <-time.After(waitFor):
		t.Fatal("service not ready")
	}

	rs := &runningService{svc: svc, signal: deps.Shutdown, done: done, base: "http://" + svc.Addr().String()}
	t.Cleanup(func() {
		rs.signal.Fire("test cleanup")
		select {
		case <-done:
		case <-time.After(waitFor):
		}
	})
	return rs
}

func (rs *runningService) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rs.done:
		rs.done <- err
		return err
	case <-time.After(waitFor):
		t.Fatal("service did not stop")
		return nil
	}
}

func (rs *runningService) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(rs.base, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (rs *runningService) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(rs.base + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func sampleMessage(id string) event.Message {
	return event.Message{
		MessageID: id,
		Text:      "deploy finished",
		Code:      "deploy",
		User:      event.User{UserID: "u1", Name: "jdoe", FirstName: "Jane", LastName: "Doe", Abbreviation: "JD", Color: "#00aa00"},
		Order:     7,
	}
}

func encode(t *testing.T, ev event.DomainEvent) []byte {
	t.Helper()
	payload, err := event.Encode(ev)
	require.NoError(t, err)
	return payload
}

// endedConsumer is a source that yields nothing and ends at once.
type endedConsumer struct{ closed bool }

func (c *endedConsumer) Messages(context.Context) (<-chan source.RawMessage, error) {
	ch := make(chan source.RawMessage)
	close(ch)
	return ch, nil
}

func (c *endedConsumer) Close() error {
	c.closed = true
	return nil
}
