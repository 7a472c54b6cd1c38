package stratum

import (
	"context"
	"errors"
	"sync"

	"github.com/stratumhq/stratum/bus"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/projector"
	"github.com/stratumhq/stratum/semaphore"
	"github.com/stratumhq/stratum/tenantctx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Event is a domain event to be appended to an aggregate's stream.
type Event struct {
	// Type identifies the kind of event, such as "account.opened".
	Type string

	// Payload is the serialized event body. The engine treats it as
	// opaque.
	Payload []byte
}

// Engine is a multi-tenant event-sourced storage and delivery engine.
type Engine struct {
	opts     *engineOptions
	provider persistence.Provider

	m      sync.Mutex
	closed bool
	ds     persistence.DataStore
	bus    *bus.Bus
	proj   *projector.Projector
}

// New returns a new engine that stores events via the given persistence
// provider.
//
// If p is nil, DefaultPersistenceProvider is used.
func New(p persistence.Provider, options ...EngineOption) *Engine {
	if p == nil {
		p = DefaultPersistenceProvider
	}

	return &Engine{
		opts:     resolveEngineOptions(options...),
		provider: p,
	}
}

// Run hosts the engine's registered consumers until ctx is canceled or an
// error occurs.
func (e *Engine) Run(ctx context.Context) error {
	e.m.Lock()
	err := e.initLocked(ctx)
	proj := e.proj
	e.m.Unlock()

	if err != nil {
		return err
	}

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	// Keep the engine alive even when it hosts no consumers; it may still
	// be serving appends.
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	for _, reg := range e.opts.Consumers {
		reg := reg // capture loop variable
		cfg := e.consumerConfig(reg.Config)

		g.Go(func() error {
			return proj.Run(ctx, cfg, reg.Handler)
		})
	}

	err = multierr.Append(
		g.Wait(),
		e.Close(),
	)

	if parent.Err() != nil {
		return parent.Err()
	}

	return err
}

// AppendEvents appends events to one aggregate's stream and publishes them
// to the engine's consumers.
//
// The tenant is taken from the ambient scope of ctx. expected is the
// aggregate's current version, or persistence.NoStream for the first write;
// a persistence.ConflictError is an expected control-flow outcome that the
// caller resolves by re-reading the stream and retrying.
//
// The append and the publish are two separate operations: a crash between
// them can lose the publish. Deployments that require exactly-once delivery
// to consumers must add a transactional outbox, written in the same
// transaction as the append, with a relay process that publishes from the
// outbox. This engine does not provide one.
func (e *Engine) AppendEvents(
	ctx context.Context,
	aggregateType, aggregateID string,
	expected int64,
	events ...Event,
) ([]uint64, error) {
	ds, b, err := e.resources(ctx)
	if err != nil {
		return nil, err
	}

	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, errors.New("can not append events: no tenant scope in context")
	}

	req := persistence.AppendRequest{
		TenantID:      scope.TenantID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Expected:      expected,
	}

	for _, ev := range events {
		req.Envelopes = append(
			req.Envelopes,
			e.opts.Packer.Pack(ctx, ev.Type, ev.Payload),
		)
	}

	globals, err := ds.AppendEvents(ctx, req)
	if err != nil {
		return nil, err
	}

	subject := bus.Subject(scope.TenantID, aggregateType)

	for _, env := range req.Envelopes {
		if err := b.Publish(ctx, subject, env); err != nil {
			return globals, err
		}
	}

	return globals, nil
}

// DataStore returns the engine's open data store, for direct access to the
// event, snapshot and dedup-marker repositories.
func (e *Engine) DataStore(ctx context.Context) (persistence.DataStore, error) {
	ds, _, err := e.resources(ctx)
	return ds, err
}

// Bus returns the engine's message bus.
func (e *Engine) Bus(ctx context.Context) (*bus.Bus, error) {
	_, b, err := e.resources(ctx)
	return b, err
}

// Close releases the engine's persistence resources.
//
// It is called automatically when Run() returns; it only needs to be called
// explicitly when the engine is used for appends without ever running. Once
// closed the engine can not be reused; any future operation returns
// persistence.ErrDataStoreClosed.
func (e *Engine) Close() error {
	e.m.Lock()
	defer e.m.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.ds == nil {
		return nil
	}

	return e.ds.Close()
}

// resources returns the engine's data store and bus, initializing them on
// first use.
func (e *Engine) resources(ctx context.Context) (persistence.DataStore, *bus.Bus, error) {
	e.m.Lock()
	defer e.m.Unlock()

	if err := e.initLocked(ctx); err != nil {
		return nil, nil, err
	}

	return e.ds, e.bus, nil
}

// initLocked opens the data store and builds the bus and projector on first
// use. e.m must be held.
func (e *Engine) initLocked(ctx context.Context) error {
	if e.closed {
		return persistence.ErrDataStoreClosed
	}

	if e.ds != nil {
		return nil
	}

	ds, err := e.provider.Open(ctx)
	if err != nil {
		return err
	}

	e.ds = ds

	e.bus = &bus.Bus{
		DataStore:       ds,
		Logger:          e.opts.Logger,
		BackoffStrategy: e.opts.MessageBackoff,
		OnDeadLetter:    e.opts.DeadLetter,
	}

	e.proj = &projector.Projector{
		Bus:             e.bus,
		DataStore:       ds,
		Logger:          e.opts.Logger,
		Semaphore:       semaphore.New(int(e.opts.ConcurrencyLimit)),
		BackoffStrategy: e.opts.MessageBackoff,
	}

	return nil
}

// consumerConfig fills a consumer's unset redelivery settings with the
// engine's defaults.
func (e *Engine) consumerConfig(cfg bus.ConsumerConfig) bus.ConsumerConfig {
	if cfg.AckWait == 0 {
		cfg.AckWait = e.opts.AckWait
	}

	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = e.opts.MaxDeliver
	}

	return cfg
}
