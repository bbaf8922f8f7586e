package drafts

import (
	"errors"
	"fmt"

	"github.com/fiscalclm/clm/internal/domain"
)

// ErrInvalidTransition is returned when a draft cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid draft status transition")

// transitions lists the statuses reachable from each status. Editing a
// rejected draft reopens it.
var transitions = map[domain.DraftStatus][]domain.DraftStatus{
	domain.DraftOpen:            {domain.DraftPendingApproval},
	domain.DraftPendingApproval: {domain.DraftApproved, domain.DraftRejected},
	domain.DraftRejected:        {domain.DraftOpen},
}

// CanTransition reports whether a draft in status from may move to status to.
func CanTransition(from, to domain.DraftStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to domain.DraftStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from.Label(), to.Label())
	}
	return nil
}

// Editable reports whether the content of a draft in status s may change.
func Editable(s domain.DraftStatus) bool {
	return s == domain.DraftOpen || s == domain.DraftRejected
}
