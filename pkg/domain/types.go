package domain

import (
	"encoding/json"
	"time"
)

type CaseStatus string

const (
	CaseCreated    CaseStatus = "created"
	CaseProcessing CaseStatus = "processing"
	CaseCompleted  CaseStatus = "completed"
	CaseError      CaseStatus = "error"
)

type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleAgent MessageRole = "agent"
)

// AgentSenderID is the fixed sender recorded on agent-authored messages.
const AgentSenderID = "agent"

type Case struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title"`
	Status    CaseStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Message struct {
	ID        string          `json:"id"`
	CaseID    string          `json:"caseId"`
	SenderID  string          `json:"senderId"`
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type CaseWithMessages struct {
	Case     Case      `json:"case"`
	Messages []Message `json:"messages"`
}

// RelayEventType tags the client-facing stream events.
type RelayEventType string

const (
	EventCaseCreated RelayEventType = "case_created"
	EventProgress    RelayEventType = "progress"
	EventResult      RelayEventType = "result"
	EventError       RelayEventType = "error"
)

// RelayEvent is the unit of the client-facing SSE stream. A stream opens with
// exactly one case_created event and terminates after the first result or
// error event; progress events may repeat in between.
type RelayEvent struct {
	Type    RelayEventType  `json:"type"`
	CaseID  string          `json:"case_id,omitempty"`
	Message string          `json:"message,omitempty"`
	Stage   string          `json:"stage,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Terminal reports whether the event closes a stream.
func (e RelayEvent) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}
