package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

func TestMockStreamCaseSequence(t *testing.T) {
	m := NewMock(time.Millisecond)
	var events []domain.RelayEvent
	err := m.StreamCase(context.Background(), "fever and neck pain", func(ev domain.RelayEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCase: %v", err)
	}

	if len(events) != len(mockStages)+1 {
		t.Fatalf("got %d events, want %d", len(events), len(mockStages)+1)
	}
	for i, stage := range mockStages {
		if events[i].Type != domain.EventProgress || events[i].Stage != stage.Stage {
			t.Fatalf("event %d = %+v, want progress stage %q", i, events[i], stage.Stage)
		}
	}
	last := events[len(events)-1]
	if last.Type != domain.EventResult {
		t.Fatalf("last event = %s, want result", last.Type)
	}
	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(last.Data, &result); err != nil {
		t.Fatalf("decode result payload: %v", err)
	}
	if !strings.Contains(result.Summary, "fever and neck pain") {
		t.Fatalf("summary should reference the case text, got %q", result.Summary)
	}
}

func TestMockStreamCaseHonorsContextCancellation(t *testing.T) {
	m := NewMock(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.StreamCase(ctx, "case", func(domain.RelayEvent) error {
		t.Fatal("no events expected after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestMockStreamCaseEmitErrorAborts(t *testing.T) {
	m := NewMock(time.Millisecond)
	sinkErr := errors.New("gone")
	calls := 0
	err := m.StreamCase(context.Background(), "case", func(domain.RelayEvent) error {
		calls++
		return sinkErr
	})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v, want sink error", err)
	}
	if calls != 1 {
		t.Fatalf("emit called %d times, want 1", calls)
	}
}
