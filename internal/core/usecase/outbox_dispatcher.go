package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
	"github.com/atvirokodosprendimai/incidents/internal/core/ports"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 50
	defaultMaxAttempts      = 5
	maxBackoff              = 5 * time.Minute
)

// OutboxDispatcher relays incident events written by the store to a
// publisher. Delivery is at least once; a row that keeps failing is
// dead-lettered after maxAttempts.
type OutboxDispatcher struct {
	repo        ports.OutboxRepository
	publisher   ports.EventPublisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
	metrics     Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type DispatcherOption func(*OutboxDispatcher)

func WithDispatchInterval(d time.Duration) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithDispatchBatchSize(n int) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithDispatcherMetrics(m Metrics) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, opts ...DispatcherOption) *OutboxDispatcher {
	d := &OutboxDispatcher{
		repo:        repo,
		publisher:   publisher,
		interval:    defaultDispatchInterval,
		batchSize:   defaultDispatchBatch,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		metrics:     noopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the dispatch loop until Close or until parent is cancelled.
// Calling Start twice is a no-op.
func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("outbox dispatch: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes one batch of due events and returns how many were
// delivered.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}

	sent := 0
	for _, event := range events {
		if err := d.deliver(ctx, event); err != nil {
			if markErr := d.markFailure(ctx, event, err.Error()); markErr != nil {
				return sent, markErr
			}
			continue
		}
		if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
			return sent, fmt.Errorf("mark dispatched %d: %w", event.ID, err)
		}
		d.metrics.OutboxDispatched(OutboxOutcomeSent)
		sent++
	}
	return sent, nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event domain.OutboxEvent) error {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(event.PayloadJSON, &envelope); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return d.publisher.Publish(ctx, event.Topic, envelope)
}

func (d *OutboxDispatcher) markFailure(ctx context.Context, event domain.OutboxEvent, errMsg string) error {
	attempts := event.Attempts + 1
	if attempts >= d.maxAttempts {
		if err := d.repo.MarkDead(ctx, event.ID, attempts, errMsg); err != nil {
			return fmt.Errorf("mark dead %d: %w", event.ID, err)
		}
		log.Printf("outbox event %s dead-lettered after %d attempts: %s", event.EventID, attempts, errMsg)
		d.metrics.OutboxDispatched(OutboxOutcomeDead)
		return nil
	}
	next := d.now().UTC().Add(backoffDuration(attempts)).Format(time.RFC3339Nano)
	if err := d.repo.MarkFailed(ctx, event.ID, attempts, next, errMsg); err != nil {
		return fmt.Errorf("mark failed %d: %w", event.ID, err)
	}
	d.metrics.OutboxDispatched(OutboxOutcomeFailed)
	return nil
}

// backoffDuration grows quadratically with the attempt number, capped at maxBackoff.
func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
