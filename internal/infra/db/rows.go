package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

// ResultRow is a Result flattened into the memory_analyses columns. The nested
// parts are stored as JSON text so both drivers share one layout.
type ResultRow struct {
	AnalysisID     string
	ClientID       string
	FlowID         string
	SubmittedBy    string
	AnalyzedAt     time.Time
	RiskScore      int
	ScoreSource    string
	IOCCount       int
	HighIOCCount   int
	ModuleResults  string
	IOCs           string
	RiskAssessment string
	CreatedAt      time.Time
}

// ResultColumns is the column list shared by INSERT and SELECT.
const ResultColumns = `analysis_id, client_id, flow_id, submitted_by, analyzed_at,
 risk_score, score_source, ioc_count, high_ioc_count,
 module_results_json, iocs_json, risk_assessment_json, created_at`

func EncodeResult(r *analysis.Result, now time.Time) (ResultRow, error) {
	modules, err := json.Marshal(r.ModuleResults)
	if err != nil {
		return ResultRow{}, fmt.Errorf("encode module results: %w", err)
	}
	iocs := r.IOCs
	if iocs == nil {
		iocs = []analysis.IOC{}
	}
	iocJSON, err := json.Marshal(iocs)
	if err != nil {
		return ResultRow{}, fmt.Errorf("encode iocs: %w", err)
	}
	risk, err := json.Marshal(r.RiskAssessment)
	if err != nil {
		return ResultRow{}, fmt.Errorf("encode risk assessment: %w", err)
	}

	analyzed := r.Timestamp
	if analyzed.IsZero() {
		analyzed = now
	}
	return ResultRow{
		AnalysisID:     string(r.AnalysisID),
		ClientID:       StringOrDash(r.ClientID),
		FlowID:         StringOrDash(r.FlowID),
		SubmittedBy:    r.SubmittedBy,
		AnalyzedAt:     analyzed.UTC(),
		RiskScore:      r.RiskAssessment.RiskScore,
		ScoreSource:    StringOrDash(string(r.RiskAssessment.ScoreSource)),
		IOCCount:       len(r.IOCs),
		HighIOCCount:   len(r.HighConfidenceIOCs()),
		ModuleResults:  string(modules),
		IOCs:           string(iocJSON),
		RiskAssessment: string(risk),
		CreatedAt:      now.UTC(),
	}, nil
}

// Args returns the row in ResultColumns order.
func (row ResultRow) Args() []any {
	return []any{
		row.AnalysisID, row.ClientID, row.FlowID, row.SubmittedBy, row.AnalyzedAt,
		row.RiskScore, row.ScoreSource, row.IOCCount, row.HighIOCCount,
		row.ModuleResults, row.IOCs, row.RiskAssessment, row.CreatedAt,
	}
}

// Dest returns scan destinations in ResultColumns order.
func (row *ResultRow) Dest() []any {
	return []any{
		&row.AnalysisID, &row.ClientID, &row.FlowID, &row.SubmittedBy, &row.AnalyzedAt,
		&row.RiskScore, &row.ScoreSource, &row.IOCCount, &row.HighIOCCount,
		&row.ModuleResults, &row.IOCs, &row.RiskAssessment, &row.CreatedAt,
	}
}

func (row ResultRow) Decode() (*analysis.Result, error) {
	res := &analysis.Result{
		AnalysisID:  analysis.AnalysisID(row.AnalysisID),
		ClientID:    row.ClientID,
		FlowID:      row.FlowID,
		SubmittedBy: row.SubmittedBy,
		Timestamp:   row.AnalyzedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.ModuleResults), &res.ModuleResults); err != nil {
		return nil, fmt.Errorf("decode module results: %w", err)
	}
	if err := json.Unmarshal([]byte(row.IOCs), &res.IOCs); err != nil {
		return nil, fmt.Errorf("decode iocs: %w", err)
	}
	if err := json.Unmarshal([]byte(row.RiskAssessment), &res.RiskAssessment); err != nil {
		return nil, fmt.Errorf("decode risk assessment: %w", err)
	}
	return res, nil
}

// StringOrDash returns "-" when the input is empty/whitespace
func StringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Limit clamps a caller supplied page size.
func Limit(n, def, hi int) int {
	if n <= 0 {
		return def
	}
	if n > hi {
		return hi
	}
	return n
}
