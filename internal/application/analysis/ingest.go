package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/application"
	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

// Enqueuer is the producer side of the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.Job) error
}

type IngestStatus string

const (
	StatusQueued  IngestStatus = "queued"
	StatusIgnored IngestStatus = "ignored"
)

type IngestResult struct {
	Status     IngestStatus      `json:"status"`
	AnalysisID domain.AnalysisID `json:"analysis_id,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// IngestOptions is the qualifying filter plus the duplicate policy.
type IngestOptions struct {
	AllowedFlows  []string
	TerminalState string
	// DedupWindow 0 admits duplicate notifications; >0 ignores repeats of the
	// same analysis id seen within the window.
	DedupWindow time.Duration
}

// Ingestor filters webhook notifications and enqueues qualifying ones.
type Ingestor struct {
	queue   Enqueuer
	allowed map[string]bool
	state   string
	window  time.Duration
	clock   application.Clock
	log     zerolog.Logger

	mu   sync.Mutex
	seen map[domain.AnalysisID]time.Time
}

func NewIngestor(q Enqueuer, opts IngestOptions, clock application.Clock, log zerolog.Logger) *Ingestor {
	allowed := make(map[string]bool, len(opts.AllowedFlows))
	for _, f := range opts.AllowedFlows {
		allowed[f] = true
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Ingestor{
		queue:   q,
		allowed: allowed,
		state:   opts.TerminalState,
		window:  opts.DedupWindow,
		clock:   clock,
		log:     log,
		seen:    make(map[domain.AnalysisID]time.Time),
	}
}

// Handle validates n and enqueues exactly one job when it qualifies.
// Non-qualifying events are ignored without error or side effects.
func (i *Ingestor) Handle(ctx context.Context, n domain.Notification) (IngestResult, error) {
	if err := n.Validate(); err != nil {
		return IngestResult{}, err
	}

	if !i.allowed[n.FlowName] || n.FlowState != i.state {
		i.log.Debug().
			Str("client_id", n.ClientID).
			Str("flow_id", n.FlowID).
			Str("flow_name", n.FlowName).
			Str("flow_state", n.FlowState).
			Msg("notification ignored")
		return IngestResult{Status: StatusIgnored, Reason: "Not a memory acquisition flow"}, nil
	}

	now := i.clock.Now()
	job := domain.Job{
		ClientID:    n.ClientID,
		FlowID:      n.FlowID,
		SubmittedAt: now,
		SubmittedBy: n.Username,
	}
	id := job.AnalysisID()

	if i.window > 0 && !i.claim(id, now) {
		i.log.Info().Str("analysis_id", string(id)).Msg("duplicate notification ignored")
		return IngestResult{Status: StatusIgnored, AnalysisID: id, Reason: "duplicate"}, nil
	}

	if err := i.queue.Enqueue(ctx, job); err != nil {
		if i.window > 0 {
			i.forget(id)
		}
		return IngestResult{}, err
	}

	i.log.Info().
		Str("analysis_id", string(id)).
		Str("client_id", n.ClientID).
		Str("flow_id", n.FlowID).
		Str("username", n.Username).
		Msg("memory dump queued for analysis")

	return IngestResult{Status: StatusQueued, AnalysisID: id}, nil
}

// claim records id unless it was seen within the window.
func (i *Ingestor) claim(id domain.AnalysisID, now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, at := range i.seen {
		if now.Sub(at) >= i.window {
			delete(i.seen, k)
		}
	}
	if _, ok := i.seen[id]; ok {
		return false
	}
	i.seen[id] = now
	return true
}

func (i *Ingestor) forget(id domain.AnalysisID) {
	i.mu.Lock()
	delete(i.seen, id)
	i.mu.Unlock()
}
