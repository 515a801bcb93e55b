package store

import (
	"testing"
	"time"

	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

func newCase(id, owner string, createdAt time.Time) domain.Case {
	return domain.Case{
		ID:        id,
		OwnerID:   owner,
		Title:     "case " + id,
		Status:    domain.CaseCreated,
		CreatedAt: createdAt,
	}
}

func TestMemoryStoreCaseLifecycle(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	if err := s.CreateCase(newCase("c1", "u1", now)); err != nil {
		t.Fatalf("create case: %v", err)
	}
	if err := s.CreateCase(newCase("c1", "u1", now)); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := s.SetCaseStatus("c1", domain.CaseProcessing); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := s.SetCaseStatus("missing", domain.CaseError); err == nil {
		t.Fatalf("expected error for unknown case")
	}

	if err := s.AppendMessage(domain.Message{ID: "m1", CaseID: "c1", SenderID: "u1", Role: domain.RoleUser, Content: "fever", CreatedAt: now}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := s.AppendMessage(domain.Message{ID: "m2", CaseID: "missing", Role: domain.RoleUser}); err == nil {
		t.Fatalf("expected error appending to unknown case")
	}

	full, ok, err := s.GetCaseWithMessages("c1", "u1")
	if err != nil || !ok {
		t.Fatalf("get case: ok=%v err=%v", ok, err)
	}
	if full.Case.Status != domain.CaseProcessing {
		t.Fatalf("status = %s, want processing", full.Case.Status)
	}
	if len(full.Messages) != 1 || full.Messages[0].Content != "fever" {
		t.Fatalf("unexpected messages: %+v", full.Messages)
	}
}

func TestMemoryStoreOwnerIsolation(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.CreateCase(newCase("c1", "u1", now)); err != nil {
		t.Fatalf("create case: %v", err)
	}

	// The case exists but belongs to u1; u2 must see not-found, not a leak.
	if _, ok, err := s.GetCaseWithMessages("c1", "u2"); err != nil || ok {
		t.Fatalf("cross-owner read: ok=%v err=%v, want not found", ok, err)
	}

	cases, err := s.ListCases("u2", 100)
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if len(cases) != 0 {
		t.Fatalf("u2 should see no cases, got %d", len(cases))
	}
}

func TestMemoryStoreListCasesNewestFirstAndStable(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"c1", "c2", "c3"} {
		if err := s.CreateCase(newCase(id, "u1", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	first, err := s.ListCases("u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 2 || first[0].ID != "c3" || first[1].ID != "c2" {
		t.Fatalf("unexpected order: %+v", first)
	}

	// Repeated reads with no intervening writes return identical results.
	second, err := s.ListCases("u1", 2)
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("ordering not stable: %v vs %v", first, second)
		}
	}
}
