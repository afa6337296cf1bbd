package analysis

import (
	"fmt"
	"sort"
	"time"
)

// AnalysisID is "<client_id>_<flow_id>"
type AnalysisID string

func NewAnalysisID(clientID, flowID string) AnalysisID {
	return AnalysisID(fmt.Sprintf("%s_%s", clientID, flowID))
}

// Job satu unit kerja: memory acquisition yang sudah selesai di GRR.
// Dibuat oleh ingestion, tidak pernah diubah setelah dibuat.
type Job struct {
	ClientID    string    `json:"client_id"`
	FlowID      string    `json:"flow_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	SubmittedBy string    `json:"submitted_by"`
}

func (j Job) AnalysisID() AnalysisID { return NewAnalysisID(j.ClientID, j.FlowID) }

// Stage enum, urutan state machine pipeline
type Stage string

const (
	StageQueued      Stage = "queued"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageDeriving    Stage = "deriving_iocs"
	StageAssessing   Stage = "assessing_risk"
	StagePersisting  Stage = "persisting"
	StageResponding  Stage = "responding"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Module is one forensic extraction routine of the battery.
type Module struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

const (
	ModuleInfo     = "windows.info"
	ModulePsList   = "windows.pslist"
	ModulePsTree   = "windows.pstree"
	ModuleNetScan  = "windows.netscan"
	ModuleMalfind  = "windows.malfind"
	ModuleCmdline  = "windows.cmdline"
	ModuleHandles  = "windows.handles"
	ModuleFileScan = "windows.filescan"
	ModuleHiveList = "windows.registry.hivelist"
)

// DefaultBattery returns the fixed module battery run against every image.
func DefaultBattery() []Module {
	return []Module{
		{Name: ModuleInfo, Description: "System information"},
		{Name: ModulePsList, Description: "Running processes"},
		{Name: ModulePsTree, Description: "Process tree"},
		{Name: ModuleNetScan, Description: "Network connections"},
		{Name: ModuleMalfind, Description: "Injected code detection"},
		{Name: ModuleCmdline, Description: "Command line arguments"},
		{Name: ModuleHandles, Description: "Open handles"},
		{Name: ModuleFileScan, Description: "Open files"},
		{Name: ModuleHiveList, Description: "Registry hives"},
	}
}

// Record is one row emitted by an extraction module.
type Record = map[string]any

// ModuleResult is either a successful module output or a failure marker.
type ModuleResult struct {
	Module        string    `json:"module"`
	Description   string    `json:"description,omitempty"`
	Records       []Record  `json:"data"`
	ProducedAt    time.Time `json:"timestamp"`
	Failed        bool      `json:"failed,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// FailedModule builds a failure marker.
func FailedModule(m Module, reason string, at time.Time) ModuleResult {
	return ModuleResult{
		Module:        m.Name,
		Description:   m.Description,
		Records:       []Record{},
		ProducedAt:    at,
		Failed:        true,
		FailureReason: reason,
	}
}

// ModuleResults keyed by module name. Only attempted modules are present.
type ModuleResults map[string]ModuleResult

// Records returns the rows of a non-failed module, nil otherwise.
func (m ModuleResults) Records(name string) []Record {
	r, ok := m[name]
	if !ok || r.Failed {
		return nil
	}
	return r.Records
}

// Failures lists the failed module names.
func (m ModuleResults) Failures() []string {
	var out []string
	for name, r := range m {
		if r.Failed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// IOCKind enum
type IOCKind string

const (
	KindProcess       IOCKind = "process"
	KindNetwork       IOCKind = "network"
	KindCodeInjection IOCKind = "code_injection"
)

// Confidence enum
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// IOC value object, immutable setelah dibuat
type IOC struct {
	Kind         IOCKind        `json:"type"`
	Value        string         `json:"value"`
	Confidence   Confidence     `json:"confidence"`
	Description  string         `json:"description"`
	SourceModule string         `json:"source_module"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// ScoreSource says how a risk score was derived from the reasoning reply.
type ScoreSource string

const (
	ScoreExplicit ScoreSource = "explicit"
	ScoreKeyword  ScoreSource = "keyword"
	ScoreDefault  ScoreSource = "default"
)

// RiskAssessment derived once per job
type RiskAssessment struct {
	Summary            string      `json:"summary"`
	RiskScore          int         `json:"risk_score"`
	ScoreSource        ScoreSource `json:"score_source"`
	RecommendedActions []string    `json:"recommended_actions"`
	ProducedAt         time.Time   `json:"analysis_timestamp"`
}

// Result is the terminal, write-once record of a job.
type Result struct {
	AnalysisID     AnalysisID     `json:"analysis_id"`
	ClientID       string         `json:"client_id"`
	FlowID         string         `json:"flow_id"`
	SubmittedBy    string         `json:"submitted_by,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ModuleResults  ModuleResults  `json:"module_results"`
	IOCs           []IOC          `json:"iocs"`
	RiskAssessment RiskAssessment `json:"risk_assessment"`
}

// HighConfidenceIOCs filters IOCs with confidence == high, order preserved.
func (r *Result) HighConfidenceIOCs() []IOC {
	var out []IOC
	for _, i := range r.IOCs {
		if i.Confidence == ConfidenceHigh {
			out = append(out, i)
		}
	}
	return out
}

// JobFailure is a persisted record of a job that ended in StageFailed.
type JobFailure struct {
	ID         int64      `json:"id"`
	AnalysisID AnalysisID `json:"analysis_id"`
	ClientID   string     `json:"client_id"`
	FlowID     string     `json:"flow_id"`
	Stage      Stage      `json:"stage"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Summary aggregate untuk endpoint /summary
type Summary struct {
	Total     int `json:"total_analyses"`
	HighRisk  int `json:"high_risk"`
	IOCs      int `json:"iocs"`
	AvgRisk   int `json:"avg_risk_score"`
	SinceDays int `json:"since_days"`
}
