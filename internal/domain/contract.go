package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Contract is a commercial contract tagged with fiscal metadata.
type Contract struct {
	// Core identifiers
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	ContractNumber string `json:"contractNumber"`
	PartyName      string `json:"partyName"`

	// Fiscal attributes consumed by the rule engine
	Value            Money         `json:"value"`
	NCM              string        `json:"ncm"`
	OriginState      State         `json:"originState"`
	DestinationState State         `json:"destinationState"`
	OperationType    OperationType `json:"operationType"`

	// Lifecycle
	ExpiryDate Date   `json:"expiryDate,omitzero"`
	Status     Status `json:"status"`

	// Audit, owned by the store
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	History   []ContractHistory `json:"history,omitempty"`
}

// CrossState reports whether goods move between two different locations.
// The OUTSIDE_BR sentinel counts as a location.
func (c *Contract) CrossState() bool {
	return c.OriginState != c.DestinationState
}

// ContractHistory is one append-only field change on a contract.
type ContractHistory struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contractId"`
	Field      string    `json:"field"`
	OldValue   string    `json:"oldValue"`
	NewValue   string    `json:"newValue"`
	ChangedAt  time.Time `json:"changedAt"`
	ChangedBy  string    `json:"changedBy"`
}

// DefaultChangedBy is recorded when the caller does not identify itself.
const DefaultChangedBy = "Usuário Sistema"

// DateLayout is the wire and storage layout of contract dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day, in UTC.
type Date struct {
	time.Time
}

// NewDate returns the calendar day at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date (or an RFC 3339 timestamp).
// The empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
		}
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// String renders the date as YYYY-MM-DD, empty when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON shadows the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// OperationType is the closed set of contract operation kinds.
// It determines which tax regime rules apply.
type OperationType uint8

const (
	OperationUnknown OperationType = iota
	OperationSale
	OperationLeasing
	OperationComodato
	OperationImport
	OperationExport

	// OperationTypeCount is the number of declared operation types, unknown included.
	OperationTypeCount
)

var operationTypeNames = [OperationTypeCount]string{
	OperationUnknown:  "",
	OperationSale:     "sale",
	OperationLeasing:  "leasing",
	OperationComodato: "comodato",
	OperationImport:   "import",
	OperationExport:   "export",
}

var operationTypeLabels = [OperationTypeCount]string{
	OperationUnknown:  "",
	OperationSale:     "Venda",
	OperationLeasing:  "Locação",
	OperationComodato: "Comodato",
	OperationImport:   "Importação",
	OperationExport:   "Exportação",
}

// OperationTypes lists every known operation type in declaration order.
func OperationTypes() []OperationType {
	return []OperationType{OperationSale, OperationLeasing, OperationComodato, OperationImport, OperationExport}
}

// String returns the canonical lower-case name.
func (o OperationType) String() string {
	if o >= OperationTypeCount {
		return fmt.Sprintf("OperationType(%d)", uint8(o))
	}
	return operationTypeNames[o]
}

// Label returns the Portuguese label shown to users.
func (o OperationType) Label() string {
	if o >= OperationTypeCount {
		return o.String()
	}
	return operationTypeLabels[o]
}

// Valid reports whether o is a known, non-zero operation type.
func (o OperationType) Valid() bool {
	return o > OperationUnknown && o < OperationTypeCount
}

// ParseOperationType accepts the canonical name or the Portuguese label, case-insensitively.
func ParseOperationType(s string) (OperationType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OperationUnknown, nil
	}
	for i := OperationSale; i < OperationTypeCount; i++ {
		if strings.EqualFold(s, operationTypeNames[i]) || strings.EqualFold(s, operationTypeLabels[i]) {
			return i, nil
		}
	}
	return OperationUnknown, fmt.Errorf("unknown operation type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o OperationType) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OperationType) UnmarshalText(b []byte) error {
	v, err := ParseOperationType(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Status is the lifecycle tag of a contract. The rule engine ignores it.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusActive
	StatusExpiring
	StatusClosed

	statusCount
)

var statusNames = [statusCount]string{"", "active", "expiring", "closed"}
var statusLabels = [statusCount]string{"", "Ativo", "Vencendo", "Encerrado"}

// Statuses lists every known status.
func Statuses() []Status {
	return []Status{StatusActive, StatusExpiring, StatusClosed}
}

func (s Status) String() string {
	if s >= statusCount {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return statusNames[s]
}

// Label returns the Portuguese label shown to users.
func (s Status) Label() string {
	if s >= statusCount {
		return s.String()
	}
	return statusLabels[s]
}

// Valid reports whether s is a known, non-zero status.
func (s Status) Valid() bool {
	return s > StatusUnknown && s < statusCount
}

// ParseStatus accepts the canonical name or the Portuguese label, case-insensitively.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusUnknown, nil
	}
	for i := StatusActive; i < statusCount; i++ {
		if strings.EqualFold(s, statusNames[i]) || strings.EqualFold(s, statusLabels[i]) {
			return i, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// State is a two-letter Brazilian state code or the OutsideBR sentinel.
type State string

// OutsideBR marks cross-border movement.
const OutsideBR State = "OUTSIDE_BR"

var brazilianStates = map[State]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true, "DF": true,
	"ES": true, "GO": true, "MA": true, "MT": true, "MS": true, "MG": true, "PA": true,
	"PB": true, "PR": true, "PE": true, "PI": true, "RJ": true, "RN": true, "RS": true,
	"RO": true, "RR": true, "SC": true, "SP": true, "SE": true, "TO": true,
}

// NormalizeState upper-cases and trims a state code.
func NormalizeState(s string) State {
	return State(strings.ToUpper(strings.TrimSpace(s)))
}

// Valid reports whether s is a known UF or OutsideBR.
func (s State) Valid() bool {
	return s == OutsideBR || brazilianStates[s]
}

// UnmarshalText normalizes the code without validating it; validation happens
// before persistence so that drafts can still be evaluated.
func (s *State) UnmarshalText(b []byte) error {
	*s = NormalizeState(string(b))
	return nil
}
