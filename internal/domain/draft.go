package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContractDraft is a contract being prepared and sent out for approval.
// External approvers reach it through ShareToken without a tenant header.
type ContractDraft struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Title    string `json:"title"`

	ContractType      OperationType `json:"contractType"`
	EquipmentCategory string        `json:"equipmentCategory,omitempty"`
	Brand             string        `json:"brand,omitempty"`

	// Counterparty
	ClientName         string `json:"clientName"`
	ClientCNPJ         string `json:"clientCnpj,omitempty"`
	ClientAddress      string `json:"clientAddress,omitempty"`
	ClientContactName  string `json:"clientContactName,omitempty"`
	ClientContactEmail string `json:"clientContactEmail,omitempty"`
	ClientContactPhone string `json:"clientContactPhone,omitempty"`

	// Commercial terms
	EquipmentDescription string   `json:"equipmentDescription,omitempty"`
	EquipmentQuantity    int      `json:"equipmentQuantity"`
	Value                Money    `json:"value"`
	PaymentTerms         string   `json:"paymentTerms,omitempty"`
	DurationMonths       int      `json:"durationMonths,omitempty"`
	StartDate            Date     `json:"startDate,omitzero"`
	WarrantyMonths       int      `json:"warrantyMonths"`
	Clauses              []Clause `json:"clauses"`
	CustomTerms          string   `json:"customTerms,omitempty"`

	// Approval workflow
	Status          DraftStatus `json:"status"`
	ShareToken      string      `json:"shareToken"`
	ApprovedBy      []Approver  `json:"approvedBy"`
	RejectionReason string      `json:"rejectionReason,omitempty"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clause is one numbered section of a draft.
type Clause struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// Approver records an external sign-off.
type Approver struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Comment    string    `json:"comment,omitempty"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// DraftStatus is the approval state of a draft.
type DraftStatus uint8

const (
	DraftUnknown DraftStatus = iota
	DraftOpen
	DraftPendingApproval
	DraftApproved
	DraftRejected

	draftStatusCount
)

var draftStatusNames = [draftStatusCount]string{"", "draft", "pending_approval", "approved", "rejected"}
var draftStatusLabels = [draftStatusCount]string{"", "Rascunho", "Aguardando Aprovação", "Aprovado", "Rejeitado"}

func (s DraftStatus) String() string {
	if s >= draftStatusCount {
		return fmt.Sprintf("DraftStatus(%d)", uint8(s))
	}
	return draftStatusNames[s]
}

// Label returns the Portuguese label shown to users.
func (s DraftStatus) Label() string {
	if s >= draftStatusCount {
		return s.String()
	}
	return draftStatusLabels[s]
}

func (s DraftStatus) Valid() bool {
	return s > DraftUnknown && s < draftStatusCount
}

// ParseDraftStatus accepts the canonical name or the Portuguese label.
func ParseDraftStatus(s string) (DraftStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DraftUnknown, nil
	}
	for i := DraftOpen; i < draftStatusCount; i++ {
		if strings.EqualFold(s, draftStatusNames[i]) || strings.EqualFold(s, draftStatusLabels[i]) {
			return i, nil
		}
	}
	return DraftUnknown, fmt.Errorf("unknown draft status %q", s)
}

func (s DraftStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DraftStatus) UnmarshalText(b []byte) error {
	v, err := ParseDraftStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
