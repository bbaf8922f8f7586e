// Package bus carries contract lifecycle and fiscal analysis events between
// the API and the alert worker.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/fiscalclm/clm/internal/domain"
)

var (
	// ErrTenantRequired is returned when a call omits the tenant.
	ErrTenantRequired = errors.New("tenantID is required")

	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("bus is closed")

	// ErrWildcardPublish is returned when publishing to AllTenants.
	ErrWildcardPublish = errors.New("cannot publish to the wildcard tenant")
)

// New creates the event bus selected by cfg.Type.
// "channel" (or empty) is the in-process community bus, "nats" the pro bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func checkPublishTenant(tenantID string) error {
	switch {
	case tenantID == "":
		return ErrTenantRequired
	case tenantID == domain.AllTenants:
		return ErrWildcardPublish
	case strings.ContainsAny(tenantID, domain.TenantReservedChars):
		return fmt.Errorf("invalid tenantID %q", tenantID)
	}
	return nil
}

func checkSubscribeTenant(tenantID string) error {
	if tenantID == domain.AllTenants {
		return nil
	}
	return checkPublishTenant(tenantID)
}

// newMessage builds the envelope of a published event. The active span's
// trace ID, if any, travels in the metadata.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata[domain.MetadataTraceID] = sc.TraceID().String()
	}
	return msg
}
