package mics

import (
	runtimepkg "github.com/drblury/mics/internal/runtime"
	buspkg "github.com/drblury/mics/internal/runtime/bus"
	configpkg "github.com/drblury/mics/internal/runtime/config"
	errspkg "github.com/drblury/mics/internal/runtime/errors"
	futurepkg "github.com/drblury/mics/internal/runtime/future"
	handlerpkg "github.com/drblury/mics/internal/runtime/handlers"
	idspkg "github.com/drblury/mics/internal/runtime/ids"
	jsoncodec "github.com/drblury/mics/internal/runtime/jsoncodec"
	"github.com/drblury/mics/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	messagepkg "github.com/drblury/mics/internal/runtime/message"
	metadatapkg "github.com/drblury/mics/internal/runtime/metadata"
)

type (
	Config       = configpkg.Config
	Runtime      = runtimepkg.Runtime
	Dependencies = runtimepkg.Dependencies

	MicroService = runtimepkg.MicroService
	InitFunc     = runtimepkg.InitFunc
	Option       = runtimepkg.Option
	State        = runtimepkg.State
	ServiceInfo  = runtimepkg.ServiceInfo

	Bus             = buspkg.Bus
	BusOptions      = buspkg.Options
	BusMetrics      = buspkg.Metrics
	BusSnapshot     = buspkg.Snapshot
	MailboxSnapshot = buspkg.MailboxSnapshot
	Participant     = buspkg.Participant
	SendOption      = buspkg.SendOption

	Future[T any] = futurepkg.Future[T]

	// Message taxonomy
	Message          = messagepkg.Message
	AnyEvent         = messagepkg.AnyEvent
	Event[T any]     = messagepkg.Event[T]
	Broadcast        = messagepkg.Broadcast
	EventBase[T any] = messagepkg.EventBase[T]
	BroadcastBase    = messagepkg.BroadcastBase
	Kind             = messagepkg.Kind
	Envelope         = messagepkg.Envelope

	MessageContextBase                         = handlerpkg.MessageContextBase
	EventContext[E messagepkg.Event[T], T any] = handlerpkg.EventContext[E, T]
	BroadcastContext[B messagepkg.Broadcast]   = handlerpkg.BroadcastContext[B]

	DispatchFunc           = runtimepkg.DispatchFunc
	DispatchMiddleware     = runtimepkg.DispatchMiddleware
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Dispatch lifecycle hooks
	DispatchContext = runtimepkg.DispatchContext
	DispatchHooks   = runtimepkg.DispatchHooks

	// Lifecycle broadcasts and run statistics
	TickBroadcast       = lifecycle.TickBroadcast
	TerminatedBroadcast = lifecycle.TerminatedBroadcast
	CrashedBroadcast    = lifecycle.CrashedBroadcast
	Statistics          = lifecycle.Statistics
	StatisticsSnapshot  = lifecycle.StatisticsSnapshot

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	HandlerInfo  = runtimepkg.HandlerInfo
	HandlerStats = runtimepkg.HandlerStats

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	UnprocessablePayloadError = runtimepkg.UnprocessablePayloadError
	HandlerError              = errspkg.HandlerError
	ConfigValidationError     = errspkg.ConfigValidationError
)

var (
	New             = runtimepkg.New
	NewBus          = buspkg.New
	NewBusMetrics   = buspkg.NewMetrics
	NewMicroService = runtimepkg.NewMicroService
	NewTicker       = runtimepkg.NewTicker
	TerminateOn     = runtimepkg.TerminateOn
	NewStatistics   = lifecycle.NewStatistics

	LoadConfig     = configpkg.LoadFile
	LoadConfigYAML = configpkg.LoadYAML
	ValidateConfig = configpkg.ValidateConfig

	WithLogger                = runtimepkg.WithLogger
	WithMiddlewares           = runtimepkg.WithMiddlewares
	WithoutDefaultMiddlewares = runtimepkg.WithoutDefaultMiddlewares
	WithHooks                 = runtimepkg.WithHooks
	WithUnregisterOnExit      = runtimepkg.WithUnregisterOnExit
	WithTracerProvider        = runtimepkg.WithTracerProvider
	WithMetrics               = runtimepkg.WithMetrics
	WithLogMessages           = runtimepkg.WithLogMessages
	WithErrorClassifier       = runtimepkg.WithErrorClassifier

	// Send options
	WithMetadata = buspkg.WithMetadata
	WithSender   = buspkg.WithSender

	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	LogMessagesMiddleware = runtimepkg.LogMessagesMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware
	MetricsMiddleware     = runtimepkg.MetricsMiddleware
	RecovererMiddleware   = runtimepkg.RecovererMiddleware

	HooksMiddleware = runtimepkg.HooksMiddleware
	LoggingHooks    = runtimepkg.LoggingHooks
	AlertingHooks   = runtimepkg.AlertingHooks

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrUnregistered    = errspkg.ErrUnregistered
	ErrServiceRequired = errspkg.ErrServiceRequired
	ErrBusRequired     = errspkg.ErrBusRequired
	ErrHandlerRequired = errspkg.ErrHandlerRequired
	ErrAlreadyStarted  = errspkg.ErrAlreadyStarted
	ErrNotInitializing = errspkg.ErrNotInitializing
	ErrNotEvent        = errspkg.ErrNotEvent
	ErrNotBroadcast    = errspkg.ErrNotBroadcast
	ErrNilMessage      = errspkg.ErrNilMessage
	ErrConfigRequired  = errspkg.ErrConfigRequired
	ErrLoggerRequired  = errspkg.ErrLoggerRequired
	IsHandlerError     = errspkg.IsHandlerError

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewZapServiceLogger       = loggingpkg.NewZapServiceLogger
	NewZerologServiceLogger   = loggingpkg.NewZerologServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
	NopLogger                 = loggingpkg.NopLogger

	NewMetadata = metadatapkg.New

	NewCorrelationID = idspkg.NewCorrelationID
)

// Metadata keys stamped on every envelope.
const (
	MetadataKeySender        = metadatapkg.KeySender
	MetadataKeyMessageType   = metadatapkg.KeyMessageType
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
)

const (
	KindEvent     = messagepkg.KindEvent
	KindBroadcast = messagepkg.KindBroadcast
)

const (
	StateCreated      = runtimepkg.StateCreated
	StateInitializing = runtimepkg.StateInitializing
	StateRunning      = runtimepkg.StateRunning
	StateTerminated   = runtimepkg.StateTerminated
)

const DefaultTickerName = runtimepkg.DefaultTickerName

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryValidation = runtimepkg.ErrorCategoryValidation
	ErrorCategoryPanic      = runtimepkg.ErrorCategoryPanic
	ErrorCategoryDownstream = runtimepkg.ErrorCategoryDownstream
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)

func NewFuture[T any]() *Future[T] {
	return futurepkg.New[T]()
}

// SendEvent routes e to the next subscriber of its type. The Future resolves
// when that subscriber completes the event; ok is false when nobody
// subscribes to the type.
func SendEvent[T any](b *Bus, e Event[T], opts ...SendOption) (*Future[T], bool) {
	return buspkg.SendEvent[T](b, e, opts...)
}

// SendEventFrom is SendEvent with s stamped as the sender.
func SendEventFrom[T any](s *MicroService, e Event[T], opts ...SendOption) (*Future[T], bool) {
	return runtimepkg.SendEvent[T](s, e, opts...)
}

func Complete[T any](b *Bus, correlationID string, result T) bool {
	return buspkg.Complete(b, correlationID, result)
}

func SubscribeEvent[E Event[T], T any](s *MicroService, handler func(EventContext[E, T]) error) error {
	return runtimepkg.SubscribeEvent(s, handler)
}

func SubscribeBroadcast[B Broadcast](s *MicroService, handler func(BroadcastContext[B]) error) error {
	return runtimepkg.SubscribeBroadcast(s, handler)
}
