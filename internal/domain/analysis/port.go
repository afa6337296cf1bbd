package analysis

//go:generate mockgen -destination=mock_ports.go -package=analysis github.com/bryanwahyu/memtriage/internal/domain/analysis Backend,Reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

// ResultRepository port (persistence, append-only)
type ResultRepository interface {
	Save(ctx context.Context, r *Result) error
	// Get returns the newest record for id, or ErrNotFound.
	Get(ctx context.Context, id AnalysisID) (*Result, error)
	Latest(ctx context.Context, limit int) ([]*Result, error)
	Summary(ctx context.Context, sinceDays int) (Summary, error)
}

// FailureRepository port untuk job yang gagal
type FailureRepository interface {
	Save(ctx context.Context, f *JobFailure) error
	ListByAnalysis(ctx context.Context, id AnalysisID, limit int) ([]*JobFailure, error)
}

// Runner port (eksekusi extraction tool)
type Runner interface {
	// Run never fails as a whole; per-module failures are failure markers.
	Run(ctx context.Context, imagePath string, modules []Module) ModuleResults
}

// FlowResult is one entry of a flow's result listing on the acquisition backend.
type FlowResult struct {
	PayloadType string          `json:"payload_type"`
	Path        string          `json:"path,omitempty"`
	PathType    string          `json:"path_type,omitempty"`
	Size        int64           `json:"size,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// PayloadStatEntry marks an image-bearing result.
const PayloadStatEntry = "StatEntry"

// HuntRequest describes a follow-up investigative job.
type HuntRequest struct {
	Name        string
	FlowName    string
	FlowArgs    map[string]any
	Description string
}

// Hunt handle returned by the backend.
type Hunt struct {
	ID    string `json:"hunt_id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Backend port (acquisition backend / GRR)
type Backend interface {
	ListResults(ctx context.Context, clientID, flowID string) ([]FlowResult, error)
	DownloadFile(ctx context.Context, clientID string, res FlowResult) (io.ReadCloser, error)
	CreateHunt(ctx context.Context, req HuntRequest) (Hunt, error)
	StartHunt(ctx context.Context, huntID string) error
}

// ErrQuotaExceeded indicates the reasoning provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("reasoning quota exceeded")

// Reasoner port: single-shot, no conversation state.
type Reasoner interface {
	Invoke(ctx context.Context, topic string) (string, error)
}

// Archive port (object storage)
type Archive interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

// EventPublisher port (message bus)
type EventPublisher interface {
	PublishCompleted(ctx context.Context, r *Result) error
	PublishHighRisk(ctx context.Context, r *Result) error
}
