package store

import (
	"fmt"
	"sync"

	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

// MemoryStore keeps cases and messages in-process. It is used when no
// database is configured and by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	cases    map[string]domain.Case
	messages map[string][]domain.Message // key: case ID
	order    []string                    // case IDs in creation order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:    make(map[string]domain.Case),
		messages: make(map[string][]domain.Message),
	}
}

// CreateCase stores a new case and tracks creation order.
func (m *MemoryStore) CreateCase(c domain.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.cases[c.ID]; exists {
		return fmt.Errorf("case %s already exists", c.ID)
	}
	m.cases[c.ID] = c
	m.order = append(m.order, c.ID)
	return nil
}

// SetCaseStatus updates the status of a stored case.
func (m *MemoryStore) SetCaseStatus(caseID string, status domain.CaseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return fmt.Errorf("case %s not found", caseID)
	}
	c.Status = status
	m.cases[caseID] = c
	return nil
}

// AppendMessage records a message linked to a case.
func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[msg.CaseID]; !ok {
		return fmt.Errorf("case %s not found", msg.CaseID)
	}
	m.messages[msg.CaseID] = append(m.messages[msg.CaseID], msg)
	return nil
}

// ListCases returns the owner's cases, newest first.
func (m *MemoryStore) ListCases(ownerID string, limit int) ([]domain.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Case, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		c, ok := m.cases[m.order[i]]
		if !ok || c.OwnerID != ownerID {
			continue
		}
		res = append(res, c)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

// GetCaseWithMessages returns one owned case with its ordered messages.
func (m *MemoryStore) GetCaseWithMessages(caseID, ownerID string) (domain.CaseWithMessages, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[caseID]
	if !ok || c.OwnerID != ownerID {
		return domain.CaseWithMessages{}, false, nil
	}
	msgs := m.messages[caseID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return domain.CaseWithMessages{Case: c, Messages: out}, true, nil
}
