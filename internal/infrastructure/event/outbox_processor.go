package event

import (
	"context"
	"sync"
	"time"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	BaseBackoff    time.Duration

	// StaleTimeout is how long an event may sit in PUBLISHING before it is
	// treated as abandoned by a crashed publisher
	StaleTimeout    time.Duration
	ReclaimInterval time.Duration

	SweepEnabled    bool
	RetentionPeriod time.Duration
	SweepInterval   time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:       100,
		PollInterval:    5 * time.Second,
		PublishTimeout:  10 * time.Second,
		BaseBackoff:     time.Second,
		StaleTimeout:    5 * time.Minute,
		ReclaimInterval: time.Minute,
		SweepEnabled:    true,
		RetentionPeriod: 7 * 24 * time.Hour,
		SweepInterval:   time.Hour,
	}
}

// OutboxMetrics observes processor activity. Implementations must be
// safe for concurrent use; a nil metrics receiver disables observation.
type OutboxMetrics interface {
	EventPublished(ctx context.Context, eventType string)
	EventFailed(ctx context.Context, eventType string)
	EventSkipped(ctx context.Context, eventType string)
	EventsReclaimed(ctx context.Context, count int64)
	EventsSwept(ctx context.Context, count int64)
}

// OutboxProcessor drives outbox events to the event bus in the
// background. It polls for pending and retryable events, claims them so
// concurrent processors never share an event, publishes each under a
// per-attempt timeout and schedules retries with exponential backoff.
// Delivery is at-least-once; consumers dedupe by event ID.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	eventBus   shared.EventBus
	serializer *EventSerializer
	config     OutboxProcessorConfig
	backoff    shared.BackoffFunc
	metrics    OutboxMetrics
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	eventBus shared.EventBus,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	config = config.withDefaults()
	return &OutboxProcessor{
		repo:       repo,
		eventBus:   eventBus,
		serializer: serializer,
		config:     config,
		backoff:    shared.ExponentialBackoff(config.BaseBackoff),
		logger:     logger,
	}
}

// withDefaults fills zero-valued fields so a partial config never yields
// a zero-duration ticker or an instantly expired publish context
func (c OutboxProcessorConfig) withDefaults() OutboxProcessorConfig {
	def := DefaultOutboxProcessorConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = def.PublishTimeout
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = def.StaleTimeout
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = def.ReclaimInterval
	}
	if c.RetentionPeriod <= 0 {
		c.RetentionPeriod = def.RetentionPeriod
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}

// SetMetrics wires a metrics observer
func (p *OutboxProcessor) SetMetrics(metrics OutboxMetrics) {
	p.metrics = metrics
}

// Start starts the background loops
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.publishLoop(ctx)

	p.wg.Add(1)
	go p.reclaimLoop(ctx)

	if p.config.SweepEnabled {
		p.wg.Add(1)
		go p.sweepLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("stale_timeout", p.config.StaleTimeout),
	)

	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessPending drains one batch of pending and retryable events. It is
// the manual counterpart of a publish loop tick, exposed for the admin API.
func (p *OutboxProcessor) ProcessPending(ctx context.Context) {
	p.processBatch(ctx)
}

// RetryFailed publishes failed events immediately, ignoring any backoff
// still pending. Skipped events are not touched; they need an explicit
// reset through the outbox service.
func (p *OutboxProcessor) RetryFailed(ctx context.Context) error {
	// A horizon far past every scheduled attempt makes all FAILED rows
	// eligible at once.
	horizon := time.Now().AddDate(1, 0, 0)
	retryable, err := p.repo.FindRetryable(ctx, horizon, p.config.BatchSize)
	if err != nil {
		return err
	}
	if len(retryable) > 0 {
		p.publishEvents(ctx, retryable)
	}
	return nil
}

// Cleanup deletes published events past the retention period and returns
// how many rows were removed.
func (p *OutboxProcessor) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-p.config.RetentionPeriod)
	deleted, err := p.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 && p.metrics != nil {
		p.metrics.EventsSwept(ctx, deleted)
	}
	return deleted, nil
}

// publishLoop is the main delivery loop
func (p *OutboxProcessor) publishLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

// processBatch publishes one batch of pending and retryable events
func (p *OutboxProcessor) processBatch(ctx context.Context) {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending events", zap.Error(err))
		return
	}
	if len(pending) > 0 {
		p.publishEvents(ctx, pending)
	}

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable events", zap.Error(err))
		return
	}
	if len(retryable) > 0 {
		p.publishEvents(ctx, retryable)
	}
}

// publishEvents claims the candidates and publishes each claimed event.
// Events another processor claimed first are simply absent from the
// claim result.
func (p *OutboxProcessor) publishEvents(ctx context.Context, events []*shared.OutboxEvent) {
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	claimed, err := p.repo.ClaimPublishing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim events for publishing", zap.Error(err))
		return
	}

	for _, evt := range claimed {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.publishOne(ctx, evt)
	}
}

// publishOne delivers a single claimed event to the event bus
func (p *OutboxProcessor) publishOne(ctx context.Context, evt *shared.OutboxEvent) {
	domainEvent, err := p.serializer.Deserialize(evt.EventType, evt.EventData)
	if err != nil {
		p.recordFailure(ctx, evt, err)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	err = p.eventBus.Publish(attemptCtx, domainEvent)
	cancel()
	if err != nil {
		p.recordFailure(ctx, evt, err)
		return
	}

	evt.MarkPublished()
	if err := p.repo.Update(ctx, evt); err != nil {
		// The consumer already saw the event; after the stale timeout the
		// row is reclaimed and redelivered, which dedupe absorbs.
		p.logger.Error("failed to mark event as published",
			zap.String("event_id", evt.EventID.String()),
			zap.Error(err),
		)
		return
	}

	if p.metrics != nil {
		p.metrics.EventPublished(ctx, evt.EventType)
	}
	p.logger.Debug("event published",
		zap.String("event_id", evt.EventID.String()),
		zap.String("event_type", evt.EventType),
	)
}

// recordFailure applies the failure transition and persists it
func (p *OutboxProcessor) recordFailure(ctx context.Context, evt *shared.OutboxEvent, cause error) {
	evt.MarkFailed(cause.Error(), p.backoff)

	if evt.IsSkipped() {
		if p.metrics != nil {
			p.metrics.EventSkipped(ctx, evt.EventType)
		}
		p.logger.Warn("event exhausted retries and was skipped",
			zap.String("event_id", evt.EventID.String()),
			zap.String("event_type", evt.EventType),
			zap.String("aggregate_type", evt.AggregateType),
			zap.String("aggregate_id", evt.AggregateID.String()),
			zap.Int("retry_count", evt.RetryCount),
			zap.String("error", evt.ErrorMessage),
		)
	} else {
		if p.metrics != nil {
			p.metrics.EventFailed(ctx, evt.EventType)
		}
		p.logger.Error("failed to publish event",
			zap.String("event_id", evt.EventID.String()),
			zap.String("event_type", evt.EventType),
			zap.Int("retry_count", evt.RetryCount),
			zap.Error(cause),
		)
	}

	if err := p.repo.Update(ctx, evt); err != nil {
		p.logger.Error("failed to update outbox event", zap.Error(err))
	}
}

// reclaimLoop periodically returns abandoned PUBLISHING events to the
// retry pool
func (p *OutboxProcessor) reclaimLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reclaim(ctx)
		}
	}
}

// reclaim recovers events stranded by a crashed publisher
func (p *OutboxProcessor) reclaim(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.StaleTimeout)
	reclaimed, err := p.repo.ReclaimStale(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to reclaim stale events", zap.Error(err))
		return
	}

	if reclaimed > 0 {
		if p.metrics != nil {
			p.metrics.EventsReclaimed(ctx, reclaimed)
		}
		p.logger.Warn("reclaimed stale publishing events",
			zap.Int64("count", reclaimed),
			zap.Time("cutoff", cutoff),
		)
	}
}

// sweepLoop periodically deletes published events past retention
func (p *OutboxProcessor) sweepLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep removes delivered events older than the retention period
func (p *OutboxProcessor) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.RetentionPeriod)
	deleted, err := p.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to sweep published events", zap.Error(err))
		return
	}

	if deleted > 0 {
		if p.metrics != nil {
			p.metrics.EventsSwept(ctx, deleted)
		}
		p.logger.Info("swept published outbox events",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
