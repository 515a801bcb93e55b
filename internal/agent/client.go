package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

const (
	defaultTimeout = 120 * time.Second

	// Generous line budget for a single SSE data line from the agent.
	maxLineBytes = 1 << 20
)

// Client streams case analysis events from the upstream diagnostic agent
// over its SSE chat endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client for the agent service at baseURL. timeout bounds
// the whole upstream call; zero means the 120s default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type agentChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type agentChatRequest struct {
	Messages []agentChatMessage `json:"messages"`
}

// StreamCase POSTs the case text to the agent and forwards each well-formed
// progress/result event as it arrives. Transport faults (connection failure,
// timeout, non-2xx status) are reported to the caller as a single synthesized
// error event; the raw fault only goes to the log. Lines that are not
// "data: <json>" or carry an unknown type are skipped.
func (c *Client) StreamCase(ctx context.Context, caseText string, emit func(domain.RelayEvent) error) error {
	body, err := json.Marshal(agentChatRequest{
		Messages: []agentChatMessage{{Role: "user", Content: caseText}},
	})
	if err != nil {
		return fmt.Errorf("marshal agent request: %w", err)
	}

	url := c.baseURL + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("agent request failed", "url", url, "error", err)
		return emit(transportErrorEvent())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("agent returned non-success status", "url", url, "status", resp.StatusCode)
		return emit(transportErrorEvent())
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var ev domain.RelayEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case domain.EventProgress:
			if err := emit(ev); err != nil {
				return err
			}
		case domain.EventResult:
			return emit(ev)
		default:
			// Unknown or absent type tag: skip.
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("agent stream read failed", "url", url, "error", err)
		return emit(transportErrorEvent())
	}
	return nil
}

func transportErrorEvent() domain.RelayEvent {
	return domain.RelayEvent{
		Type:    domain.EventError,
		Message: "diagnostic agent is unavailable, please try again later",
	}
}
