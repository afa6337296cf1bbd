package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/application"
	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

// DefaultAssessTimeout bounds the reasoning round trip when Timeout is unset.
const DefaultAssessTimeout = 2 * time.Minute

// Assessor gets a risk assessment from the reasoning service, one round trip per job.
type Assessor struct {
	Reasoner domain.Reasoner
	// Timeout caps Invoke; <= 0 means DefaultAssessTimeout.
	Timeout time.Duration
	Clock   application.Clock
	Log     zerolog.Logger
}

// Assess only fails on a transport/service error; ambiguous replies fall back to defaults.
func (a *Assessor) Assess(ctx context.Context, clientID string, results domain.ModuleResults, iocs []domain.IOC) (domain.RiskAssessment, error) {
	brief := domain.BuildBrief(clientID, results, iocs, a.Clock.Now())

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultAssessTimeout
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary, err := a.Reasoner.Invoke(ictx, brief.Topic())
	if err != nil {
		if errors.Is(ictx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("no reply within %s: %w", timeout, err)
		}
		return domain.RiskAssessment{}, fmt.Errorf("%w: %w", domain.ErrAssessmentService, err)
	}

	score, source := domain.ParseRiskScore(summary)
	actions := domain.ParseActions(summary)
	if source != domain.ScoreExplicit {
		a.Log.Debug().Str("client_id", clientID).Str("score_source", string(source)).Int("risk_score", score).
			Msg("no explicit risk score in reply, using fallback")
	}

	return domain.RiskAssessment{
		Summary:            summary,
		RiskScore:          score,
		ScoreSource:        source,
		RecommendedActions: actions,
		ProducedAt:         a.Clock.Now(),
	}, nil
}
