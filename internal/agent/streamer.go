package agent

import (
	"context"

	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

// Streamer produces the event sequence for one case interaction. Implementations
// emit zero or more progress events followed by at most one result event; they
// never emit case_created. If emit returns an error the implementation stops
// reading and returns that error unchanged.
type Streamer interface {
	StreamCase(ctx context.Context, caseText string, emit func(domain.RelayEvent) error) error
}
