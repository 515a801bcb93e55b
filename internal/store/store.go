package store

import "github.com/BIDS-Xu-Lab/opendx/pkg/domain"

// Store defines persistence operations for cases and their messages.
// Read operations are owner-scoped: a case that exists under a different
// owner is reported as not found, never returned.
type Store interface {
	CreateCase(c domain.Case) error
	SetCaseStatus(caseID string, status domain.CaseStatus) error
	AppendMessage(msg domain.Message) error
	ListCases(ownerID string, limit int) ([]domain.Case, error)
	GetCaseWithMessages(caseID, ownerID string) (domain.CaseWithMessages, bool, error)
}
