package stratum

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/stratumhq/stratum/bus"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/persistence/boltpersistence"
	"github.com/stratumhq/stratum/projector"
)

var (
	// DefaultPersistenceProvider is the default persistence provider.
	//
	// It is overridden by passing a provider to New().
	DefaultPersistenceProvider persistence.Provider = &boltpersistence.FileProvider{
		Path: "/var/run/stratum.boltdb",
	}

	// DefaultMessageBackoff is the default backoff strategy for event
	// redelivery.
	//
	// It is overridden by the WithMessageBackoff() option.
	DefaultMessageBackoff backoff.Strategy = backoff.WithTransforms(
		backoff.Exponential(100*time.Millisecond),
		linger.FullJitter,
		linger.Limiter(0, 1*time.Hour),
	)

	// DefaultConcurrencyLimit is the default number of events to handle
	// concurrently.
	//
	// It is overridden by the WithConcurrencyLimit() option.
	DefaultConcurrencyLimit = uint(runtime.GOMAXPROCS(0) * 2)

	// DefaultAckWait is the default duration a delivery may remain
	// outstanding before it is redelivered. It applies to consumers whose
	// configuration leaves AckWait zero.
	//
	// It is overridden by the WithAckWait() option.
	DefaultAckWait = bus.DefaultAckWait

	// DefaultMaxDeliver is the default maximum number of delivery attempts
	// per event. It applies to consumers whose configuration leaves
	// MaxDeliver zero.
	//
	// It is overridden by the WithMaxDeliver() option.
	DefaultMaxDeliver uint = 10

	// DefaultLogger is the default target for log messages produced by the
	// engine.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// EngineOption configures the behavior of an engine.
type EngineOption func(*engineOptions)

// WithConsumer returns an engine option that registers a named durable
// consumer and the handler that applies its events.
//
// The registration is validated immediately; a malformed configuration or a
// nil handler panics rather than surfacing when the engine runs.
func WithConsumer(cfg bus.ConsumerConfig, h projector.Handler) EngineOption {
	if h == nil {
		panic(fmt.Sprintf("consumer %s has no handler", cfg.Name))
	}

	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	return func(opts *engineOptions) {
		for _, reg := range opts.Consumers {
			if reg.Config.Name == cfg.Name {
				panic(fmt.Sprintf(
					"can not register two consumers named %s",
					cfg.Name,
				))
			}
		}

		opts.Consumers = append(opts.Consumers, consumerRegistration{cfg, h})
	}
}

// WithPacker returns an engine option that sets the packer used to envelope
// appended events.
//
// If this option is omitted a packer that generates UUID event IDs and uses
// the wall clock is used.
func WithPacker(p *envelope.Packer) EngineOption {
	return func(opts *engineOptions) {
		opts.Packer = p
	}
}

// WithMessageBackoff returns an engine option that sets the backoff strategy
// used to delay event redelivery.
//
// If this option is omitted or s is nil DefaultMessageBackoff is used.
func WithMessageBackoff(s backoff.Strategy) EngineOption {
	return func(opts *engineOptions) {
		opts.MessageBackoff = s
	}
}

// WithConcurrencyLimit returns an engine option that limits the number of
// events that will be handled at the same time.
//
// If this option is omitted or n is zero DefaultConcurrencyLimit is used.
func WithConcurrencyLimit(n uint) EngineOption {
	return func(opts *engineOptions) {
		opts.ConcurrencyLimit = n
	}
}

// WithAckWait returns an engine option that sets the ack-wait applied to
// consumers whose configuration leaves it zero.
//
// If this option is omitted or d is zero DefaultAckWait is used.
func WithAckWait(d time.Duration) EngineOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *engineOptions) {
		opts.AckWait = d
	}
}

// WithMaxDeliver returns an engine option that sets the delivery-attempt
// limit applied to consumers whose configuration leaves it zero.
//
// If this option is omitted or n is zero DefaultMaxDeliver is used.
func WithMaxDeliver(n uint) EngineOption {
	return func(opts *engineOptions) {
		opts.MaxDeliver = n
	}
}

// WithDeadLetterHook returns an engine option that sets a function invoked
// whenever an event is terminated or exhausts its delivery attempts.
func WithDeadLetterHook(fn func(bus.DeadLetter)) EngineOption {
	return func(opts *engineOptions) {
		opts.DeadLetter = fn
	}
}

// WithLogger returns an engine option that sets the target for log messages
// produced by the engine.
//
// If this option is omitted or l is nil DefaultLogger is used.
func WithLogger(l logging.Logger) EngineOption {
	return func(opts *engineOptions) {
		opts.Logger = l
	}
}

// consumerRegistration pairs a consumer's configuration with its handler.
type consumerRegistration struct {
	Config  bus.ConsumerConfig
	Handler projector.Handler
}

// engineOptions is a fully-resolved set of engine configuration values.
type engineOptions struct {
	Consumers        []consumerRegistration
	Packer           *envelope.Packer
	MessageBackoff   backoff.Strategy
	ConcurrencyLimit uint
	AckWait          time.Duration
	MaxDeliver       uint
	DeadLetter       func(bus.DeadLetter)
	Logger           logging.Logger
}

// resolveEngineOptions returns a fully-populated set of engine options built
// from the given set of option functions.
func resolveEngineOptions(options ...EngineOption) *engineOptions {
	opts := &engineOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.Packer == nil {
		opts.Packer = &envelope.Packer{}
	}

	if opts.MessageBackoff == nil {
		opts.MessageBackoff = DefaultMessageBackoff
	}

	if opts.ConcurrencyLimit == 0 {
		opts.ConcurrencyLimit = DefaultConcurrencyLimit
	}

	if opts.AckWait == 0 {
		opts.AckWait = DefaultAckWait
	}

	if opts.MaxDeliver == 0 {
		opts.MaxDeliver = DefaultMaxDeliver
	}

	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}

	return opts
}
