package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

const defaultMockDelay = 300 * time.Millisecond

// mockStages is the fixed analysis pipeline the mock walks through.
var mockStages = []struct {
	Stage   string
	Message string
}{
	{"intake", "Reading the case description"},
	{"history", "Extracting patient history"},
	{"symptoms", "Identifying presenting symptoms"},
	{"differentials", "Building differential diagnoses"},
	{"evidence", "Weighing supporting evidence"},
	{"tests", "Selecting recommended tests"},
	{"ranking", "Ranking candidate diagnoses"},
	{"report", "Composing the final report"},
}

// Mock replays a canned diagnostic session without contacting the agent
// service. Useful for local development and end-to-end tests.
type Mock struct {
	delay time.Duration
}

// NewMock builds a Mock whose per-stage delay defaults to 300ms when
// delay <= 0.
func NewMock(delay time.Duration) *Mock {
	if delay <= 0 {
		delay = defaultMockDelay
	}
	return &Mock{delay: delay}
}

// StreamCase emits the fixed progress stages and then one result carrying a
// summary derived from the case text.
func (m *Mock) StreamCase(ctx context.Context, caseText string, emit func(domain.RelayEvent) error) error {
	for _, stage := range mockStages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
		err := emit(domain.RelayEvent{
			Type:    domain.EventProgress,
			Stage:   stage.Stage,
			Message: stage.Message,
		})
		if err != nil {
			return err
		}
	}

	payload, err := json.Marshal(map[string]any{
		"summary": fmt.Sprintf("Mock analysis of: %s", caseText),
		"differential_diagnoses": []map[string]any{
			{"condition": "Condition A", "likelihood": "high"},
			{"condition": "Condition B", "likelihood": "moderate"},
		},
		"recommended_tests": []string{"Complete blood count", "Imaging study"},
	})
	if err != nil {
		return fmt.Errorf("marshal mock result: %w", err)
	}
	return emit(domain.RelayEvent{
		Type: domain.EventResult,
		Data: payload,
	})
}
