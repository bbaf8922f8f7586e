// Package contracts implements the contract lifecycle on top of the
// repository, the contract cache and the event bus.
package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/metrics"
	"github.com/fiscalclm/clm/internal/repository"
	"github.com/fiscalclm/clm/internal/rules"
)

// ErrNotFound is returned when the contract does not exist for the tenant.
var ErrNotFound = repository.ErrNotFound

// Options configures a Service. Every field is optional.
type Options struct {
	// ContractTTL is how long contracts stay cached after a read.
	ContractTTL time.Duration
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Service orchestrates contract persistence, caching and lifecycle events.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	metrics *metrics.Collector
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates a Service. cache and bus may be nil.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ContractTTL <= 0 {
		opts.ContractTTL = 5 * time.Minute
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		ttl:     opts.ContractTTL,
		now:     time.Now,
	}
}

// normalize canonicalizes user input in place before validation.
func normalize(c *domain.Contract) {
	c.NCM = rules.FormatNCM(c.NCM)
	c.OriginState = domain.NormalizeState(string(c.OriginState))
	c.DestinationState = domain.NormalizeState(string(c.DestinationState))
	if c.Status == domain.StatusUnknown {
		c.Status = domain.StatusActive
	}
}

// Create validates and stores a new contract, then publishes it.
func (s *Service) Create(ctx context.Context, tenantID string, c *domain.Contract) (*domain.Contract, error) {
	if c == nil {
		return nil, Validate(nil)
	}
	created := *c
	normalize(&created)
	if err := Validate(&created); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	created.ID = uuid.New().String()
	created.TenantID = tenantID
	created.CreatedAt = now
	created.UpdatedAt = now
	created.History = []domain.ContractHistory{}

	if err := s.repo.CreateContract(ctx, tenantID, &created); err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}
	s.metrics.RecordContractOp("create")

	s.publish(ctx, tenantID, domain.TopicContractCreated, "created", &created, created.ID)
	return &created, nil
}

// Get returns a contract with its history. The record is read through the cache.
func (s *Service) Get(ctx context.Context, tenantID, contractID string) (*domain.Contract, error) {
	c, err := s.load(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListContractHistory(ctx, tenantID, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	c.History = history
	return c, nil
}

func (s *Service) load(ctx context.Context, tenantID, contractID string) (*domain.Contract, error) {
	if s.cache != nil {
		cached, err := s.cache.GetContract(ctx, tenantID, contractID)
		if err != nil {
			s.logger.Warn("contract cache read failed", "contract_id", contractID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	c, err := s.repo.GetContract(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetContract(ctx, tenantID, c, s.ttl); err != nil {
			s.logger.Warn("contract cache write failed", "contract_id", contractID, "error", err)
		}
	}
	return c, nil
}

// List returns every contract of the tenant without history.
func (s *Service) List(ctx context.Context, tenantID string) ([]*domain.Contract, error) {
	contracts, err := s.repo.ListContracts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, nil
}

// Update replaces the editable fields of contract c.ID and records one
// history entry per changed field. changedBy defaults to domain.DefaultChangedBy.
func (s *Service) Update(ctx context.Context, tenantID string, c *domain.Contract, changedBy string) (*domain.Contract, error) {
	if c == nil {
		return nil, Validate(nil)
	}
	current, err := s.repo.GetContract(ctx, tenantID, c.ID)
	if err != nil {
		return nil, err
	}

	updated := *c
	normalize(&updated)
	if err := Validate(&updated); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updated.TenantID = tenantID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = now
	updated.History = nil

	changes := Diff(current, &updated, changedBy, now)
	if err := s.repo.UpdateContract(ctx, tenantID, &updated, changes); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}
	s.metrics.RecordContractOp("update")
	s.invalidate(ctx, tenantID, updated.ID)

	s.publish(ctx, tenantID, domain.TopicContractUpdated, "updated", &updated, updated.ID)

	history, err := s.repo.ListContractHistory(ctx, tenantID, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	updated.History = history
	return &updated, nil
}

// Delete removes the contract and its history.
func (s *Service) Delete(ctx context.Context, tenantID, contractID string) error {
	if err := s.repo.DeleteContract(ctx, tenantID, contractID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	s.metrics.RecordContractOp("delete")
	s.invalidate(ctx, tenantID, contractID)

	s.publish(ctx, tenantID, domain.TopicContractDeleted, "deleted", nil, contractID)
	return nil
}

// History returns the change log of an existing contract, newest first.
func (s *Service) History(ctx context.Context, tenantID, contractID string) ([]domain.ContractHistory, error) {
	if _, err := s.load(ctx, tenantID, contractID); err != nil {
		return nil, err
	}
	return s.repo.ListContractHistory(ctx, tenantID, contractID)
}

func (s *Service) invalidate(ctx context.Context, tenantID, contractID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteContract(ctx, tenantID, contractID); err != nil {
		s.logger.Warn("contract cache invalidation failed", "contract_id", contractID, "error", err)
	}
}

// publish emits a lifecycle event. Failures are logged and never returned.
func (s *Service) publish(ctx context.Context, tenantID, topic, action string, c *domain.Contract, contractID string) {
	if s.bus == nil {
		return
	}

	event := domain.ContractEvent{
		Action:     action,
		TenantID:   tenantID,
		TraceID:    traceID(ctx),
		Contract:   c,
		ContractID: contractID,
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = s.bus.Publish(ctx, tenantID, topic, payload)
	}
	s.metrics.RecordEvent(topic, err)
	if err != nil {
		s.logger.Error("failed to publish contract event",
			"topic", topic,
			"tenant_id", tenantID,
			"contract_id", contractID,
			"error", err,
		)
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
