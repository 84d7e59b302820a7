package fluxnotify

import (
	runtimepkg "github.com/drblury/fluxnotify/internal/runtime"
	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	"github.com/drblury/fluxnotify/internal/runtime/event"
	"github.com/drblury/fluxnotify/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
	"github.com/drblury/fluxnotify/internal/runtime/shutdown"
	"github.com/drblury/fluxnotify/internal/runtime/source"
)

type (
	Config              = configpkg.Config
	ConsumerBinding     = configpkg.ConsumerBinding
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	RelayStats          = runtimepkg.RelayStats

	Consumer   = source.Consumer
	RawMessage = source.RawMessage

	DomainEvent = event.DomainEvent
	Message     = event.Message
	User        = event.User
	Stream      = event.Stream

	ShutdownSignal = shutdown.Signal

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConnectError          = errspkg.ConnectError
	DecodeError           = errspkg.DecodeError
	AckError              = errspkg.AckError
	LaggedError           = errspkg.LaggedError
	ConfigValidationError = errspkg.ConfigValidationError
)

const (
	SourceJetStream = configpkg.SourceJetStream
	SourceChannel   = configpkg.SourceChannel
	SourceNATS      = configpkg.SourceNATS
	SourceKafka     = configpkg.SourceKafka
	SourceRabbitMQ  = configpkg.SourceRabbitMQ
	SourceAWS       = configpkg.SourceAWS
	SourceHTTP      = configpkg.SourceHTTP
)

var (
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig
	BindSource     = source.Bind

	Decode = event.Decode
	Encode = event.Encode
	Frame  = event.Frame

	NewShutdownSignal   = shutdown.New
	WatchShutdownSignal = shutdown.Start

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewJSONServiceLogger      = loggingpkg.NewJSONServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrConfigRequired   = errspkg.ErrConfigRequired
	ErrLoggerRequired   = errspkg.ErrLoggerRequired
	ErrNoSubscribers    = errspkg.ErrNoSubscribers
	ErrConsumerStreamed = errspkg.ErrConsumerStreamed
	ErrUnknownSource    = errspkg.ErrUnknownSource
	ErrSourceEnded      = errspkg.ErrSourceEnded
	ErrShuttingDown     = errspkg.ErrShuttingDown
)
