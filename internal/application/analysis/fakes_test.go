package analysis

import (
	"context"
	"os"
	"sync"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

// stubRunner returns canned results and remembers whether the image existed
// while it ran.
type stubRunner struct {
	results    domain.ModuleResults
	panicWith  any
	sawImage   bool
	imagePath  string
	gotModules []domain.Module
}

func (s *stubRunner) Run(_ context.Context, imagePath string, modules []domain.Module) domain.ModuleResults {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	s.imagePath = imagePath
	s.gotModules = modules
	_, err := os.Stat(imagePath)
	s.sawImage = err == nil
	return s.results
}

type memResults struct {
	mu    sync.Mutex
	saved []*domain.Result
	err   error
}

func (m *memResults) Save(_ context.Context, r *domain.Result) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, r)
	return nil
}

func (m *memResults) Get(_ context.Context, id domain.AnalysisID) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].AnalysisID == id {
			return m.saved[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memResults) Latest(_ context.Context, limit int) ([]*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Result, 0, limit)
	for i := len(m.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.saved[i])
	}
	return out, nil
}

func (m *memResults) Summary(_ context.Context, sinceDays int) (domain.Summary, error) {
	return domain.Summary{SinceDays: sinceDays}, nil
}

type memFailures struct {
	mu    sync.Mutex
	saved []*domain.JobFailure
}

func (m *memFailures) Save(_ context.Context, f *domain.JobFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, f)
	return nil
}

func (m *memFailures) ListByAnalysis(_ context.Context, id domain.AnalysisID, limit int) ([]*domain.JobFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.JobFailure
	for _, f := range m.saved {
		if f.AnalysisID == id && len(out) < limit {
			out = append(out, f)
		}
	}
	return out, nil
}

type countingObserver struct {
	started, done int
	failed        []domain.Stage
	hunts         int
}

func (c *countingObserver) JobStarted()                  { c.started++ }
func (c *countingObserver) JobDone()                     { c.done++ }
func (c *countingObserver) JobFailed(stage domain.Stage) { c.failed = append(c.failed, stage) }
func (c *countingObserver) HuntsSubmitted(n int)         { c.hunts += n }

type recordingEvents struct {
	completed, highRisk int
}

func (r *recordingEvents) PublishCompleted(context.Context, *domain.Result) error {
	r.completed++
	return nil
}

func (r *recordingEvents) PublishHighRisk(context.Context, *domain.Result) error {
	r.highRisk++
	return nil
}

type recordingArchive struct {
	keys []string
}

func (r *recordingArchive) PutJSON(_ context.Context, key string, _ any) (string, error) {
	r.keys = append(r.keys, key)
	return "http://minio/analyses/" + key, nil
}
