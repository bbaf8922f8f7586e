package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Subscribing with AllTenants receives the topic for every tenant.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AllTenants is the wildcard tenant for subscriptions.
const AllTenants = "*"

// TenantReservedChars may not appear in a tenant ID; they separate
// tokens in bus subjects.
const TenantReservedChars = ".:> "

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// MetadataTraceID is the message metadata key of the publisher's trace ID.
const MetadataTraceID = "traceId"

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `mapstructure:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `mapstructure:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `mapstructure:"natsUrl"`
	NATSToken         string `mapstructure:"natsToken"`
	NATSMaxReconnects int    `mapstructure:"natsMaxReconnects"`
	NATSReconnectWait int    `mapstructure:"natsReconnectWait"` // seconds
}

// Topic names for the contract lifecycle and fiscal analysis pipeline.
const (
	TopicContractCreated = "clm.contract.created"
	TopicContractUpdated = "clm.contract.updated"
	TopicContractDeleted = "clm.contract.deleted"
	TopicFiscalAnalysis  = "clm.fiscal.analysis"
	TopicFiscalAlert     = "clm.fiscal.alert"

	TopicDraftSubmitted = "clm.draft.submitted"
	TopicDraftApproved  = "clm.draft.approved"
	TopicDraftRejected  = "clm.draft.rejected"
)

// ContractEvent is the payload of contract lifecycle topics.
type ContractEvent struct {
	Action   string    `json:"action"` // created, updated, deleted
	TenantID string    `json:"tenantId"`
	TraceID  string    `json:"traceId,omitempty"`
	Contract *Contract `json:"contract,omitempty"`

	// ContractID is always set, including for deletions
	ContractID string `json:"contractId"`
}

// FiscalAlertEvent is the payload of the analysis and alert topics.
type FiscalAlertEvent struct {
	TenantID       string    `json:"tenantId"`
	TraceID        string    `json:"traceId,omitempty"`
	ContractNumber string    `json:"contractNumber"`
	Analysis       *Analysis `json:"analysis"`
}

// DraftEvent is the payload of the draft approval topics.
type DraftEvent struct {
	TenantID string         `json:"tenantId"`
	TraceID  string         `json:"traceId,omitempty"`
	DraftID  string         `json:"draftId"`
	Status   DraftStatus    `json:"status"`
	Draft    *ContractDraft `json:"draft"`
}
