// Package worker analyzes contracts asynchronously as they are created or
// updated and republishes the result on the fiscal topics.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/metrics"
	"github.com/fiscalclm/clm/internal/rules"
)

// ErrNoContract is returned for lifecycle events that carry no contract body.
var ErrNoContract = errors.New("event carries no contract")

// Topics the worker consumes.
var consumedTopics = []string{domain.TopicContractCreated, domain.TopicContractUpdated}

// Worker subscribes to contract lifecycle events on the EventBus.
type Worker struct {
	bus     domain.EventBus
	engine  *rules.Engine
	metrics *metrics.Collector
	logger  *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	alerted   atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs to consume. Empty subscribes to every tenant.
	TenantIDs []string
}

// NewWorker creates a worker. m may be nil.
func NewWorker(bus domain.EventBus, engine *rules.Engine, m *metrics.Collector, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		engine:  engine,
		metrics: m,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to created and updated events for each tenant.
// A tenant whose subscription fails is logged and skipped.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.startTenant(tenantID); err != nil {
			w.logger.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("worker: no tenant subscription could be started")
	}

	w.logger.Info("workers started", "tenant_count", started)
	return nil
}

func (w *Worker) startTenant(tenantID string) error {
	for _, topic := range consumedTopics {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, w.handleMessage)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	w.logger.Info("tenant worker started",
		"tenant_id", tenantID,
		"topics", consumedTopics,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	if err := w.process(ctx, msg); err != nil {
		w.failed.Add(1)
		return err
	}
	return nil
}

// process analyzes the contract carried by msg and publishes the result.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.ContractEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("failed to parse contract event %s: %w", msg.ID, err)
	}
	if event.Contract == nil {
		return fmt.Errorf("%w: %s", ErrNoContract, msg.ID)
	}

	tenantID := msg.TenantID
	if event.TenantID != "" {
		tenantID = event.TenantID
	}
	traceID := event.TraceID
	if traceID == "" {
		traceID = msg.Metadata[domain.MetadataTraceID]
	}
	if traceID == "" {
		traceID = msg.ID
	}
	c := event.Contract

	analysis := w.engine.Analyze(ctx, c)
	w.metrics.RecordAnalysis(analysis, time.Since(start))
	w.processed.Add(1)

	payload, err := json.Marshal(domain.FiscalAlertEvent{
		TenantID:       tenantID,
		TraceID:        traceID,
		ContractNumber: c.ContractNumber,
		Analysis:       analysis,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	w.publish(ctx, tenantID, domain.TopicFiscalAnalysis, payload, c.ID)

	if analysis.HasRisk() {
		w.alerted.Add(1)
		for _, alert := range analysis.Alerts {
			if alert.Type != domain.AlertRisk {
				continue
			}
			w.logger.Warn("fiscal risk detected",
				"tenant_id", tenantID,
				"trace_id", traceID,
				"contract_id", c.ID,
				"contract_number", c.ContractNumber,
				"code", alert.Code,
				"impact", alert.Impact,
			)
		}
		w.publish(ctx, tenantID, domain.TopicFiscalAlert, payload, c.ID)
	}

	w.logger.Info("contract analyzed",
		"tenant_id", tenantID,
		"trace_id", traceID,
		"contract_id", c.ID,
		"score", analysis.Score,
		"alerts", len(analysis.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) publish(ctx context.Context, tenantID, topic string, payload []byte, contractID string) {
	err := w.bus.Publish(ctx, tenantID, topic, payload)
	w.metrics.RecordEvent(topic, err)
	if err != nil {
		w.logger.Error("failed to publish analysis",
			"topic", topic,
			"contract_id", contractID,
			"error", err,
		)
	}
}

// Stop cancels the handlers and unsubscribes from every topic.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Alerted           int64    `json:"alerted"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Alerted:           w.alerted.Load(),
		Failed:            w.failed.Load(),
	}
}
