package source

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
)

// HTTPSubscriberFactory allows overriding the ingest subscriber for testing.
var HTTPSubscriberFactory = func(addr string, cfg http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, cfg, logger)
}

type httpServerStarter interface {
	StartHTTPServer() error
}

// httpSource accepts POSTed payloads on HTTPIngestAddress. Every subject is
// served as its own path, e.g. flux.message becomes /flux.message.
func httpSource(_ context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error) {
	subscriber, err := HTTPSubscriberFactory(
		conf.HTTPIngestAddress,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		return nil, connectError(configpkg.SourceHTTP, "subscriber", err)
	}

	subjects := conf.Binding().Subjects
	paths := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		paths = append(paths, ingestPath(subject))
	}

	c := newWatermillConsumer(configpkg.SourceHTTP, subscriber, paths, logger)
	// Routes are registered by Subscribe, so the server starts afterwards.
	c.afterSubscribe = func() error {
		starter, ok := subscriber.(httpServerStarter)
		if !ok {
			return nil
		}
		go func() {
			if err := starter.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("HTTP ingest server stopped", err, nil)
			}
		}()
		return nil
	}
	return c, nil
}

func ingestPath(subject string) string {
	if strings.HasPrefix(subject, "/") {
		return subject
	}
	return "/" + subject
}
