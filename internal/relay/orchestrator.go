package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/BIDS-Xu-Lab/opendx/internal/agent"
	"github.com/BIDS-Xu-Lab/opendx/internal/store"
	"github.com/BIDS-Xu-Lab/opendx/internal/util"
	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

const (
	stageInitial = "initial"
	stageFinal   = "final"

	maxTitleRunes = 64
)

// Interaction is one inbound chat request. An empty OwnerID marks the
// interaction anonymous; anonymous interactions never touch the store.
type Interaction struct {
	OwnerID  string
	CaseText string
}

// Orchestrator drives one case interaction: it opens the event sequence with
// case_created, relays the streamer's events to the sink, persists the
// conversation for owned interactions and guarantees exactly one terminal
// event per stream.
type Orchestrator struct {
	store    store.Store
	streamer agent.Streamer
}

func New(st store.Store, streamer agent.Streamer) *Orchestrator {
	return &Orchestrator{store: st, streamer: streamer}
}

// sinkError wraps a sink write failure so the run loop can tell a
// disconnected client apart from upstream faults.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "sink closed: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Run executes the full relay sequence for one interaction and returns the
// generated case ID. All faults after the stream opens surface to the caller
// as in-band events; Run itself only reports them through the log.
func (o *Orchestrator) Run(ctx context.Context, in Interaction, sink func(domain.RelayEvent) error) string {
	log := util.LoggerFromContext(ctx)
	caseID := uuid.NewString()
	owned := in.OwnerID != ""

	if err := sink(domain.RelayEvent{Type: domain.EventCaseCreated, CaseID: caseID}); err != nil {
		log.Info("client disconnected before stream start", "case_id", caseID)
		return caseID
	}

	terminated := false
	terminate := func(ev domain.RelayEvent) {
		if terminated {
			log.Warn("dropping extra terminal event", "case_id", caseID, "type", ev.Type)
			return
		}
		terminated = true
		if err := sink(ev); err != nil {
			log.Info("client disconnected before terminal event", "case_id", caseID)
		}
	}

	if owned {
		if err := o.openCase(caseID, in); err != nil {
			log.Error("case persistence failed", "case_id", caseID, "error", err)
			terminate(domain.RelayEvent{
				Type:    domain.EventError,
				CaseID:  caseID,
				Message: "failed to record the case, please try again later",
			})
			return caseID
		}
	}

	streamErr := o.streamer.StreamCase(ctx, in.CaseText, func(ev domain.RelayEvent) error {
		switch ev.Type {
		case domain.EventProgress:
			if terminated {
				return nil
			}
			if err := sink(ev); err != nil {
				return &sinkError{err: err}
			}
			return nil
		case domain.EventResult:
			if owned {
				if err := o.closeCase(caseID, in.OwnerID, ev.Data); err != nil {
					log.Error("result persistence failed", "case_id", caseID, "error", err)
				}
			}
			ev.CaseID = caseID
			terminate(ev)
			return nil
		case domain.EventError:
			if owned {
				if err := o.store.SetCaseStatus(caseID, domain.CaseError); err != nil {
					log.Error("status update failed", "case_id", caseID, "error", err)
				}
			}
			ev.CaseID = caseID
			terminate(ev)
			return nil
		default:
			log.Warn("streamer emitted unknown event type", "case_id", caseID, "type", ev.Type)
			return nil
		}
	})

	var sinkErr *sinkError
	if errors.As(streamErr, &sinkErr) {
		// Client went away mid-stream; stop here. An owned case may be left
		// in processing.
		log.Info("client disconnected mid-stream", "case_id", caseID)
		return caseID
	}
	if streamErr != nil && !terminated {
		log.Error("agent stream failed", "case_id", caseID, "error", streamErr)
	}
	if !terminated {
		if owned {
			if err := o.store.SetCaseStatus(caseID, domain.CaseError); err != nil {
				log.Error("status update failed", "case_id", caseID, "error", err)
			}
		}
		terminate(domain.RelayEvent{
			Type:    domain.EventError,
			CaseID:  caseID,
			Message: "agent stream ended unexpectedly",
		})
	}
	return caseID
}

// openCase records the new case, marks it processing and appends the initial
// user message.
func (o *Orchestrator) openCase(caseID string, in Interaction) error {
	now := time.Now().UTC()
	err := o.store.CreateCase(domain.Case{
		ID:        caseID,
		OwnerID:   in.OwnerID,
		Title:     caseTitle(in.CaseText),
		Status:    domain.CaseCreated,
		CreatedAt: now,
	})
	if err != nil {
		return err
	}
	if err := o.store.SetCaseStatus(caseID, domain.CaseProcessing); err != nil {
		return err
	}
	return o.store.AppendMessage(domain.Message{
		ID:        util.NewID(),
		CaseID:    caseID,
		SenderID:  in.OwnerID,
		Role:      domain.RoleUser,
		Content:   in.CaseText,
		Stage:     stageInitial,
		CreatedAt: now,
	})
}

// closeCase appends the agent's final message and marks the case completed.
func (o *Orchestrator) closeCase(caseID, ownerID string, payload json.RawMessage) error {
	var result struct {
		Summary string `json:"summary"`
	}
	if len(payload) > 0 {
		// A result without a decodable summary still gets persisted.
		_ = json.Unmarshal(payload, &result)
	}
	content := result.Summary
	if content == "" {
		content = "Analysis complete"
	}
	err := o.store.AppendMessage(domain.Message{
		ID:        util.NewID(),
		CaseID:    caseID,
		SenderID:  domain.AgentSenderID,
		Role:      domain.RoleAgent,
		Content:   content,
		Payload:   payload,
		Stage:     stageFinal,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return o.store.SetCaseStatus(caseID, domain.CaseCompleted)
}

// caseTitle derives a short list-view title from the case text.
func caseTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return string(runes[:maxTitleRunes]) + "..."
}
