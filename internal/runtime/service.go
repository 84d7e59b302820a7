package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	"github.com/drblury/fluxnotify/internal/runtime/event"
	"github.com/drblury/fluxnotify/internal/runtime/hub"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
	"github.com/drblury/fluxnotify/internal/runtime/metrics"
	"github.com/drblury/fluxnotify/internal/runtime/registry"
	"github.com/drblury/fluxnotify/internal/runtime/relay"
	"github.com/drblury/fluxnotify/internal/runtime/session"
	"github.com/drblury/fluxnotify/internal/runtime/shutdown"
	"github.com/drblury/fluxnotify/internal/runtime/source"
)

// maxIngestBody bounds a single POSTed event.
const maxIngestBody = 1 << 20

var (
	sourceBind    = source.Bind
	shutdownGrace = 5 * time.Second

	errInjectUnsupported = errors.New("fluxnotify: event source does not accept injected events")
)

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	// Consumer replaces the source selected by Config.SourceKind.
	Consumer source.Consumer
	// Registry collects and serves the metrics. Nil selects the Prometheus
	// default registry.
	Registry *prometheus.Registry
	// Shutdown replaces the SIGINT/SIGTERM watcher.
	Shutdown *shutdown.Signal
}

// Service wires the event source, the relay loop, the fan-out hub and the
// client-facing HTTP server.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	consumer  source.Consumer
	hub       *hub.Hub[event.DomainEvent]
	registry  *registry.Registry
	sessions  *session.Handler
	relay     *relay.Relay
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	signal    *shutdown.Signal
	load      *loadTracker
	created   time.Time

	httpServers   map[string]*http.ServeMux
	httpServersMu sync.Mutex
	boundAddrs    map[string]net.Addr
	ready         chan struct{}
}

// NewService validates conf, binds the event source and prepares every route.
// A *errors.ConnectError means the source could not be reached.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	normalized := conf.WithDefaults()
	if err := normalized.Validate(); err != nil {
		return nil, errspkg.ConfigValidationError{Err: err}
	}
	log.Info("Creating notification relay", loggingpkg.LogFields{
		"source": normalized.SourceKind,
		"config": normalized.String(),
	})

	s := &Service{
		Conf:       &normalized,
		Logger:     log,
		registry:   registry.New(),
		load:       newLoadTracker(),
		created:    time.Now(),
		boundAddrs: make(map[string]net.Addr),
		ready:      make(chan struct{}),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	s.gatherer = prometheus.DefaultGatherer
	if deps.Registry != nil {
		registerer = deps.Registry
		s.gatherer = deps.Registry
	}
	s.metrics = metrics.New(registerer)
	if normalized.MetricsEnabled {
		if err := s.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	h, err := hub.New[event.DomainEvent](normalized.HubCapacity)
	if err != nil {
		return nil, err
	}
	s.hub = h

	s.consumer = deps.Consumer
	if s.consumer == nil {
		if s.consumer, err = sourceBind(ctx, s.Conf, log); err != nil {
			return nil, err
		}
	}

	s.signal = deps.Shutdown
	if s.signal == nil {
		s.signal = shutdown.Start(log)
	}

	s.sessions, err = session.NewHandler(session.Options{
		Hub:               s.hub,
		Registry:          s.registry,
		Shutdown:          s.signal,
		Logger:            log,
		Metrics:           s.metrics,
		HeartbeatInterval: normalized.HeartbeatInterval,
		WriteTimeout:      normalized.WriteTimeout,
		FilterStreams:     normalized.StreamFilterEnabled(),
		AllowedOrigins:    normalized.AllowedOrigins,
	})
	if err != nil {
		_ = s.consumer.Close()
		return nil, err
	}

	s.relay, err = relay.New(s.consumer, s.hub, log, s.metrics)
	if err != nil {
		_ = s.consumer.Close()
		return nil, err
	}

	s.registerRoutes()
	return s, nil
}

func (s *Service) registerRoutes() {
	addr := s.Conf.HTTPAddress
	prefix := s.Conf.PathPrefix

	s.RegisterHTTPHandler(addr, "GET "+prefix+"/healthz", http.HandlerFunc(s.handleHealthz))
	s.RegisterHTTPHandler(addr, "GET "+prefix+"/notify/ws", http.HandlerFunc(s.sessions.ServeWebSocket))
	s.RegisterHTTPHandler(addr, "GET "+prefix+"/notify/{$}", http.HandlerFunc(s.sessions.ServeSSE))
	s.RegisterHTTPHandler(addr, "GET "+prefix+"/notify/sse", http.HandlerFunc(s.sessions.ServeSSE))
	s.RegisterHTTPHandler(addr, prefix+"/notify/stats", http.HandlerFunc(s.handleStats))

	if _, ok := s.consumer.(source.Injector); ok {
		s.RegisterHTTPHandler(addr, "POST "+prefix+"/notify/events", http.HandlerFunc(s.handleIngest))
	}

	if s.Conf.MetricsEnabled {
		handler := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		if s.Conf.MetricsPort == 0 {
			s.RegisterHTTPHandler(addr, "GET "+prefix+"/metrics", handler)
		} else {
			s.RegisterHTTPHandler(fmt.Sprintf(":%d", s.Conf.MetricsPort), "GET /metrics", handler)
		}
	}
}

// RegisterHTTPHandler mounts handler on the server listening on addr. It must
// be called before Start.
func (s *Service) RegisterHTTPHandler(addr, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[string]*http.ServeMux)
	}

	mux, ok := s.httpServers[addr]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[addr] = mux
	}

	mux.Handle(pattern, handler)
}

// Start serves clients and runs the relay until ctx is cancelled, the
// shutdown signal fires, a server fails or the source ends. Sessions get a
// grace period to close before the servers stop.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The stream is taken before serving so that nothing injected after
	// Ready is lost.
	messages, err := s.consumer.Messages(ctx)
	if err != nil {
		s.stop(nil, nil)
		return err
	}

	servers, serveErrs, err := s.startHTTPServers()
	if err != nil {
		s.stop(servers, nil)
		return err
	}
	close(s.ready)

	relayDone := make(chan error, 1)
	go func() { relayDone <- s.relay.Consume(ctx, messages) }()

	var runErr error
	select {
	case <-ctx.Done():
	case <-s.signal.Done():
	case err := <-serveErrs:
		runErr = err
	case err := <-relayDone:
		relayDone = nil
		runErr = err
		if runErr == nil && ctx.Err() == nil {
			runErr = errspkg.ErrSourceEnded
		}
	}

	cancel()
	s.stop(servers, relayDone)
	if runErr != nil {
		s.Logger.Error("Notification relay stopped with error", runErr, nil)
	}
	return runErr
}

func (s *Service) startHTTPServers() ([]*http.Server, <-chan error, error) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	serveErrs := make(chan error, len(s.httpServers))
	for addr, mux := range s.httpServers {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return servers, serveErrs, fmt.Errorf("listen on %s: %w", addr, err)
		}
		s.boundAddrs[addr] = ln.Addr()

		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": ln.Addr().String()})
		go func(addr string) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": addr})
				serveErrs <- err
			}
		}(addr)
	}
	return servers, serveErrs, nil
}

// stop closes sessions first so that hijacked WebSocket connections get their
// close frame, then the servers, the relay and the source.
func (s *Service) stop(servers []*http.Server, relayDone <-chan error) {
	s.signal.Fire("service stopping")

	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := s.sessions.Wait(graceCtx); err != nil {
		s.Logger.Error("Sessions did not close in time", err, loggingpkg.LogFields{"open": s.sessions.Active()})
	}
	for _, srv := range servers {
		if err := srv.Shutdown(graceCtx); err != nil {
			s.Logger.Error("Failed to shut down HTTP server", err, nil)
		}
	}
	if relayDone != nil {
		select {
		case <-relayDone:
		case <-graceCtx.Done():
		}
	}

	s.hub.Close()
	if err := s.consumer.Close(); err != nil {
		s.Logger.Error("Failed to close event source", err, nil)
	}
	s.signal.Stop()
	s.Logger.Info("Notification relay stopped", nil)
}

// Ready is closed once every HTTP server listens.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address of the client-facing server, nil before
// Ready.
func (s *Service) Addr() net.Addr {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()
	return s.boundAddrs[s.Conf.HTTPAddress]
}

// Shutdown fires the shutdown signal; Start returns once everything stopped.
func (s *Service) Shutdown(reason string) { s.signal.Fire(reason) }

// Inject hands payload to an in-process source. It fails for sources that
// only consume from a broker.
func (s *Service) Inject(payload []byte) error {
	injector, ok := s.consumer.(source.Injector)
	if !ok {
		return errInjectUnsupported
	}
	return injector.Inject(payload)
}

func (s *Service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleIngest accepts one protobuf encoded event. Undecodable payloads are
// rejected here instead of being acked and dropped by the relay.
func (s *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if _, err := event.Decode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Inject(payload); err != nil {
		if errors.Is(err, errspkg.ErrShuttingDown) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		s.Logger.Error("Failed to inject event", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
