package main

import (
	"strings"
	"time"

	"github.com/drblury/fluxnotify"
)

// Config is read from the environment. Lists are comma separated.
type Config struct {
	SourceKind     string `env:"FLUX_SOURCE,default=nats-jetstream"`
	ConsumerName   string `env:"FLUX_CONSUMER,required=true"`
	SubjectFilters string `env:"FLUX_SUBJECTS,required=true"`
	StreamName     string `env:"FLUX_STREAM"`

	NATSURL      string        `env:"NATS_URL,default=nats://localhost:4222"`
	FetchBatch   int           `env:"FLUX_FETCH_BATCH"`
	FetchMaxWait time.Duration `env:"FLUX_FETCH_MAX_WAIT"`
	AckWait      time.Duration `env:"FLUX_ACK_WAIT"`
	MaxDeliver   int           `env:"FLUX_MAX_DELIVER"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	RabbitMQURL  string `env:"RABBITMQ_URL"`

	AWSRegion          string `env:"AWS_REGION"`
	AWSAccountID       string `env:"AWS_ACCOUNT_ID"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSEndpoint        string `env:"AWS_ENDPOINT"`

	HTTPIngestAddress string `env:"FLUX_INGEST_ADDRESS"`

	HubCapacity         int           `env:"FLUX_HUB_CAPACITY"`
	HTTPAddress         string        `env:"FLUX_HTTP_ADDRESS"`
	PathPrefix          string        `env:"FLUX_PATH_PREFIX"`
	HeartbeatInterval   time.Duration `env:"FLUX_HEARTBEAT_INTERVAL"`
	WriteTimeout        time.Duration `env:"FLUX_WRITE_TIMEOUT"`
	AllowedOrigins      string        `env:"FLUX_ALLOWED_ORIGINS"`
	DisableStreamFilter bool          `env:"FLUX_DISABLE_STREAM_FILTER"`

	MetricsEnabled bool `env:"FLUX_METRICS_ENABLED,default=true"`
	MetricsPort    int  `env:"FLUX_METRICS_PORT"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Relay maps the environment onto the relay configuration. Zero values are
// left for the relay defaults.
func (c Config) Relay() *fluxnotify.Config {
	return &fluxnotify.Config{
		SourceKind:          c.SourceKind,
		ConsumerName:        c.ConsumerName,
		SubjectFilters:      splitList(c.SubjectFilters),
		StreamName:          c.StreamName,
		NATSURL:             c.NATSURL,
		FetchBatch:          c.FetchBatch,
		FetchMaxWait:        c.FetchMaxWait,
		AckWait:             c.AckWait,
		MaxDeliver:          c.MaxDeliver,
		KafkaBrokers:        splitList(c.KafkaBrokers),
		RabbitMQURL:         c.RabbitMQURL,
		AWSRegion:           c.AWSRegion,
		AWSAccountID:        c.AWSAccountID,
		AWSAccessKeyID:      c.AWSAccessKeyID,
		AWSSecretAccessKey:  c.AWSSecretAccessKey,
		AWSEndpoint:         c.AWSEndpoint,
		HTTPIngestAddress:   c.HTTPIngestAddress,
		HubCapacity:         c.HubCapacity,
		HTTPAddress:         c.HTTPAddress,
		PathPrefix:          c.PathPrefix,
		HeartbeatInterval:   c.HeartbeatInterval,
		WriteTimeout:        c.WriteTimeout,
		AllowedOrigins:      splitList(c.AllowedOrigins),
		DisableStreamFilter: c.DisableStreamFilter,
		MetricsEnabled:      c.MetricsEnabled,
		MetricsPort:         c.MetricsPort,
		LogLevel:            c.LogLevel,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
