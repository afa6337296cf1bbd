package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

func TestResultRow_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	res := &analysis.Result{
		AnalysisID:  "C.1_F1",
		ClientID:    "C.1",
		FlowID:      "F1",
		SubmittedBy: "analyst",
		Timestamp:   ts,
		ModuleResults: analysis.ModuleResults{
			analysis.ModulePsList:  {Module: analysis.ModulePsList, Records: []analysis.Record{{"PID": float64(4)}}, ProducedAt: ts},
			analysis.ModuleMalfind: analysis.FailedModule(analysis.Module{Name: analysis.ModuleMalfind}, "timeout after 5m0s", ts),
		},
		IOCs: []analysis.IOC{
			{Kind: analysis.KindNetwork, Value: "203.0.113.5", Confidence: analysis.ConfidenceHigh, SourceModule: analysis.ModuleNetScan},
			{Kind: analysis.KindProcess, Value: "cmd.exe", Confidence: analysis.ConfidenceMedium},
		},
		RiskAssessment: analysis.RiskAssessment{Summary: "Risk score: 80", RiskScore: 80, ScoreSource: analysis.ScoreExplicit, ProducedAt: ts},
	}

	row, err := EncodeResult(res, ts.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, row.IOCCount)
	assert.Equal(t, 1, row.HighIOCCount)
	assert.Equal(t, 80, row.RiskScore)
	assert.Equal(t, "explicit", row.ScoreSource)
	assert.Len(t, row.Args(), len(row.Dest()))

	got, err := row.Decode()
	require.NoError(t, err)
	assert.Equal(t, res.AnalysisID, got.AnalysisID)
	assert.Equal(t, res.IOCs, got.IOCs)
	assert.Equal(t, res.RiskAssessment, got.RiskAssessment)
	assert.True(t, got.ModuleResults[analysis.ModuleMalfind].Failed)
	assert.Equal(t, float64(4), got.ModuleResults.Records(analysis.ModulePsList)[0]["PID"])
}

func TestEncodeResult_EmptyIOCs(t *testing.T) {
	row, err := EncodeResult(&analysis.Result{AnalysisID: "C.1_F1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "[]", row.IOCs)
	assert.Equal(t, "-", row.ClientID)
	assert.False(t, row.AnalyzedAt.IsZero())
}

func TestLimit(t *testing.T) {
	assert.Equal(t, 20, Limit(0, 20, 200))
	assert.Equal(t, 20, Limit(-5, 20, 200))
	assert.Equal(t, 50, Limit(50, 20, 200))
	assert.Equal(t, 200, Limit(5000, 20, 200))
}
