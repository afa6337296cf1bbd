package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bryanwahyu/memtriage/internal/application"
	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

func TestAssessor_ExplicitScore(t *testing.T) {
	ctrl := gomock.NewController(t)
	reasoner := domain.NewMockReasoner(ctrl)
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	a := &Assessor{Reasoner: reasoner, Clock: application.FixedClock(now), Log: zerolog.Nop()}

	iocs := []domain.IOC{{Kind: domain.KindNetwork, Value: "203.0.113.5", Confidence: domain.ConfidenceHigh}}
	reasoner.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, topic string) (string, error) {
			assert.Contains(t, topic, "client C.1")
			assert.Contains(t, topic, "203.0.113.5")
			return "Risk score: 92\n1. Block 203.0.113.5 at the edge firewall", nil
		})

	got, err := a.Assess(context.Background(), "C.1", domain.ModuleResults{}, iocs)
	require.NoError(t, err)
	assert.Equal(t, 92, got.RiskScore)
	assert.Equal(t, domain.ScoreExplicit, got.ScoreSource)
	assert.Equal(t, []string{"Block 203.0.113.5 at the edge firewall"}, got.RecommendedActions)
	assert.Equal(t, now, got.ProducedAt)
}

func TestAssessor_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	reasoner := domain.NewMockReasoner(ctrl)
	a := &Assessor{Reasoner: reasoner, Clock: application.SystemClock{}, Log: zerolog.Nop()}

	reasoner.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("", domain.ErrQuotaExceeded)

	_, err := a.Assess(context.Background(), "C.1", domain.ModuleResults{}, nil)
	assert.True(t, errors.Is(err, domain.ErrAssessmentService))
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
}

// blockingReasoner never answers on its own; it returns only when ctx ends.
type blockingReasoner struct{}

func (blockingReasoner) Invoke(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAssessor_TimeoutBoundsHungService(t *testing.T) {
	a := &Assessor{Reasoner: blockingReasoner{}, Timeout: 50 * time.Millisecond, Clock: application.SystemClock{}, Log: zerolog.Nop()}

	start := time.Now()
	_, err := a.Assess(context.Background(), "C.1", domain.ModuleResults{}, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, errors.Is(err, domain.ErrAssessmentService))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "no reply within 50ms")
}
