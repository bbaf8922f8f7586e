// Package drafts runs the approval workflow of contract drafts: a draft is
// written, submitted, and then approved or rejected by an external party
// holding its share link.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/fiscalclm/clm/internal/contracts"
	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/metrics"
	"github.com/fiscalclm/clm/internal/repository"
)

var (
	// ErrNotFound is returned for unknown drafts and share tokens.
	ErrNotFound = repository.ErrNotFound

	// ErrConflict is returned when another request changed the draft's status first.
	ErrConflict = repository.ErrConflict

	// ErrLocked is returned when editing a draft that is awaiting or past approval.
	ErrLocked = errors.New("draft cannot be edited")
)

// Options configures a Service. Every field is optional.
type Options struct {
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Service manages drafts and their status transitions.
type Service struct {
	repo     domain.Repository
	bus      domain.EventBus
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
	newToken func() string
}

// NewService creates a Service. bus may be nil.
func NewService(repo domain.Repository, bus domain.EventBus, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		bus:      bus,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      time.Now,
		newToken: newShareToken,
	}
}

func newShareToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create stores a new open draft with a fresh share token.
// createdBy defaults to domain.DefaultChangedBy.
func (s *Service) Create(ctx context.Context, tenantID string, d *domain.ContractDraft, createdBy string) (*domain.ContractDraft, error) {
	if d == nil {
		return nil, Validate(nil)
	}
	created := *d
	normalize(&created)
	if err := Validate(&created); err != nil {
		return nil, err
	}
	if createdBy == "" {
		createdBy = domain.DefaultChangedBy
	}

	now := s.now().UTC()
	created.ID = uuid.New().String()
	created.TenantID = tenantID
	created.Status = domain.DraftOpen
	created.ShareToken = s.newToken()
	created.ApprovedBy = []domain.Approver{}
	created.RejectionReason = ""
	created.CreatedBy = createdBy
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := s.repo.CreateDraft(ctx, tenantID, &created); err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	s.metrics.RecordDraftTransition(domain.DraftOpen)
	return &created, nil
}

// Get returns a draft of the tenant.
func (s *Service) Get(ctx context.Context, tenantID, draftID string) (*domain.ContractDraft, error) {
	return s.repo.GetDraft(ctx, tenantID, draftID)
}

// GetShared returns the draft a share link points to.
func (s *Service) GetShared(ctx context.Context, token string) (*domain.ContractDraft, error) {
	return s.repo.GetDraftByShareToken(ctx, token)
}

// List returns the tenant's drafts, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]*domain.ContractDraft, error) {
	list, err := s.repo.ListDrafts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return list, nil
}

// Update replaces the content of draft d.ID. Status, share token and
// approvals are kept. Editing a rejected draft reopens it.
func (s *Service) Update(ctx context.Context, tenantID string, d *domain.ContractDraft) (*domain.ContractDraft, error) {
	if d == nil {
		return nil, Validate(nil)
	}
	current, err := s.repo.GetDraft(ctx, tenantID, d.ID)
	if err != nil {
		return nil, err
	}
	if !Editable(current.Status) {
		return nil, fmt.Errorf("%w: draft is %s", ErrLocked, current.Status.Label())
	}

	updated := *d
	normalize(&updated)
	if err := Validate(&updated); err != nil {
		return nil, err
	}

	updated.TenantID = tenantID
	updated.Status = current.Status
	updated.ShareToken = current.ShareToken
	updated.ApprovedBy = current.ApprovedBy
	updated.RejectionReason = current.RejectionReason
	updated.CreatedBy = current.CreatedBy
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.now().UTC()

	if current.Status == domain.DraftRejected {
		updated.Status = domain.DraftOpen
		updated.RejectionReason = ""
	}

	if err := s.repo.UpdateDraft(ctx, tenantID, &updated, current.Status); err != nil {
		return nil, err
	}
	if updated.Status != current.Status {
		s.metrics.RecordDraftTransition(updated.Status)
	}
	return &updated, nil
}

// Delete removes a draft in any status.
func (s *Service) Delete(ctx context.Context, tenantID, draftID string) error {
	return s.repo.DeleteDraft(ctx, tenantID, draftID)
}

// Submit sends an open draft out for approval.
func (s *Service) Submit(ctx context.Context, tenantID, draftID string) (*domain.ContractDraft, error) {
	d, err := s.repo.GetDraft(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, d, domain.DraftPendingApproval, nil)
}

// Approve records approver's sign-off on a pending draft.
func (s *Service) Approve(ctx context.Context, tenantID, draftID string, approver domain.Approver) (*domain.ContractDraft, error) {
	d, err := s.repo.GetDraft(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	return s.approve(ctx, d, approver)
}

// ApproveShared approves the draft behind a share token.
func (s *Service) ApproveShared(ctx context.Context, token string, approver domain.Approver) (*domain.ContractDraft, error) {
	d, err := s.repo.GetDraftByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.approve(ctx, d, approver)
}

// Reject turns down a pending draft. reason is required.
func (s *Service) Reject(ctx context.Context, tenantID, draftID, reason string) (*domain.ContractDraft, error) {
	d, err := s.repo.GetDraft(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	return s.reject(ctx, d, reason)
}

// RejectShared rejects the draft behind a share token.
func (s *Service) RejectShared(ctx context.Context, token, reason string) (*domain.ContractDraft, error) {
	d, err := s.repo.GetDraftByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.reject(ctx, d, reason)
}

func (s *Service) approve(ctx context.Context, d *domain.ContractDraft, approver domain.Approver) (*domain.ContractDraft, error) {
	approver.Name = strings.TrimSpace(approver.Name)
	approver.Email = strings.TrimSpace(approver.Email)
	if err := validateApprover(approver); err != nil {
		return nil, err
	}
	approver.ApprovedAt = s.now().UTC()

	return s.transition(ctx, d, domain.DraftApproved, func(next *domain.ContractDraft) {
		next.ApprovedBy = append(slices.Clone(d.ApprovedBy), approver)
	})
}

func (s *Service) reject(ctx context.Context, d *domain.ContractDraft, reason string) (*domain.ContractDraft, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &contracts.ValidationError{Fields: []contracts.FieldError{{Field: "reason", Message: "is required"}}}
	}

	return s.transition(ctx, d, domain.DraftRejected, func(next *domain.ContractDraft) {
		next.RejectionReason = reason
	})
}

// transition moves d to status to, applying mutate to the copy that is stored.
// The store only accepts the write while d is still in its loaded status.
func (s *Service) transition(ctx context.Context, d *domain.ContractDraft, to domain.DraftStatus, mutate func(*domain.ContractDraft)) (*domain.ContractDraft, error) {
	if err := checkTransition(d.Status, to); err != nil {
		return nil, err
	}

	next := *d
	next.Status = to
	next.UpdatedAt = s.now().UTC()
	if mutate != nil {
		mutate(&next)
	}

	if err := s.repo.UpdateDraft(ctx, d.TenantID, &next, d.Status); err != nil {
		return nil, err
	}
	s.metrics.RecordDraftTransition(to)
	s.logger.Info("draft status changed",
		"tenant_id", d.TenantID,
		"draft_id", d.ID,
		"from", d.Status.String(),
		"to", to.String(),
	)

	s.publish(ctx, &next)
	return &next, nil
}

var statusTopics = map[domain.DraftStatus]string{
	domain.DraftPendingApproval: domain.TopicDraftSubmitted,
	domain.DraftApproved:        domain.TopicDraftApproved,
	domain.DraftRejected:        domain.TopicDraftRejected,
}

// publish emits the approval event of d's new status. Failures are logged.
func (s *Service) publish(ctx context.Context, d *domain.ContractDraft) {
	topic, ok := statusTopics[d.Status]
	if s.bus == nil || !ok {
		return
	}

	event := domain.DraftEvent{
		TenantID: d.TenantID,
		DraftID:  d.ID,
		Status:   d.Status,
		Draft:    d,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		event.TraceID = sc.TraceID().String()
	}

	payload, err := json.Marshal(event)
	if err == nil {
		err = s.bus.Publish(ctx, d.TenantID, topic, payload)
	}
	s.metrics.RecordEvent(topic, err)
	if err != nil {
		s.logger.Error("failed to publish draft event",
			"topic", topic,
			"tenant_id", d.TenantID,
			"draft_id", d.ID,
			"error", err,
		)
	}
}
