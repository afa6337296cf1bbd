package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/application"
	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
	"github.com/bryanwahyu/memtriage/internal/logger"
)

// Downloader is the acquisition side of the pipeline.
type Downloader interface {
	Download(ctx context.Context, clientID, flowID string) (*Image, error)
}

// Observer receives pipeline lifecycle counts (metrics).
type Observer interface {
	JobStarted()
	JobDone()
	JobFailed(stage domain.Stage)
	HuntsSubmitted(n int)
}

type nopObserver struct{}

func (nopObserver) JobStarted()            {}
func (nopObserver) JobDone()               {}
func (nopObserver) JobFailed(domain.Stage) {}
func (nopObserver) HuntsSubmitted(int)     {}

const failureWriteTimeout = 10 * time.Second

// Pipeline drains the queue with a single worker. Per job the stages run
// strictly in order: download, extract, derive IOCs, assess, persist, respond.
// Archive, Events, Failures, Responder and Observer are optional.
type Pipeline struct {
	Queue     *Queue
	Acquirer  Downloader
	Runner    domain.Runner
	Modules   []domain.Module
	Assessor  *Assessor
	Results   domain.ResultRepository
	Failures  domain.FailureRepository
	Archive   domain.Archive
	Events    domain.EventPublisher
	Responder *Responder
	Observer  Observer
	Clock     application.Clock
	Log       zerolog.Logger
}

// Run consumes jobs until the queue is closed and drained, or ctx is done.
// A dequeued job is never aborted mid-flight: it runs detached from ctx.
func (p *Pipeline) Run(ctx context.Context) {
	p.Log.Info().Int("queue_capacity", p.Queue.Cap()).Msg("analysis worker started")
	defer p.Log.Info().Msg("analysis worker stopped")

	jobs := p.Queue.Jobs()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			p.Log.Info().Str("client_id", job.ClientID).Str("flow_id", job.FlowID).Msg("processing analysis task")
			_, _ = p.Process(context.WithoutCancel(ctx), job)
		}
	}
}

// Process runs one job to Done or Failed. The downloaded image is removed on
// every exit path, panics included.
func (p *Pipeline) Process(ctx context.Context, job domain.Job) (result *domain.Result, err error) {
	id := job.AnalysisID()
	log := logger.WithFields(p.Log, map[string]interface{}{
		"analysis_id": string(id),
		"client_id":   job.ClientID,
		"flow_id":     job.FlowID,
	})
	obs := p.observer()
	obs.JobStarted()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &domain.StageError{Stage: domain.StageFailed, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			stage := domain.FailedStage(err)
			log.Error().Err(err).Str("stage", string(stage)).Dur("elapsed", time.Since(start)).Msg("analysis failed")
			p.recordFailure(job, stage, err, log)
			obs.JobFailed(stage)
			return
		}
		log.Info().Str("stage", string(domain.StageDone)).Dur("elapsed", time.Since(start)).
			Int("risk_score", result.RiskAssessment.RiskScore).Int("iocs", len(result.IOCs)).
			Msg("analysis complete")
		obs.JobDone()
	}()

	// 1. download
	log.Info().Str("stage", string(domain.StageDownloading)).Msg("stage")
	img, err := p.Acquirer.Download(ctx, job.ClientID, job.FlowID)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageDownloading, Err: err}
	}
	defer func() {
		if rerr := img.Remove(); rerr != nil {
			log.Warn().Err(rerr).Str("path", img.Path).Msg("failed to remove memory dump")
		}
	}()

	// 2. extraction battery, module failures are data not errors
	log.Info().Str("stage", string(domain.StageExtracting)).Int("modules", len(p.Modules)).Msg("stage")
	modules := p.Runner.Run(ctx, img.Path, p.Modules)
	if failed := modules.Failures(); len(failed) > 0 {
		log.Warn().Strs("failed_modules", failed).Msg("some extraction modules failed")
	}

	// 3. IOCs
	log.Info().Str("stage", string(domain.StageDeriving)).Msg("stage")
	iocs := domain.ExtractIOCs(modules)

	// 4. risk
	log.Info().Str("stage", string(domain.StageAssessing)).Int("iocs", len(iocs)).Msg("stage")
	assessment, err := p.Assessor.Assess(ctx, job.ClientID, modules, iocs)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageAssessing, Err: err}
	}

	res := &domain.Result{
		AnalysisID:     id,
		ClientID:       job.ClientID,
		FlowID:         job.FlowID,
		SubmittedBy:    job.SubmittedBy,
		Timestamp:      p.now(),
		ModuleResults:  modules,
		IOCs:           iocs,
		RiskAssessment: assessment,
	}

	// 5. persist
	log.Info().Str("stage", string(domain.StagePersisting)).Msg("stage")
	if err := p.Results.Save(ctx, res); err != nil {
		return nil, &domain.StageError{Stage: domain.StagePersisting, Err: fmt.Errorf("%w: %w", domain.ErrPersistence, err)}
	}
	p.archive(ctx, res, log)
	p.publish(ctx, res, log)

	// 6. respond
	if p.Responder.ShouldRespond(res) {
		log.Info().Str("stage", string(domain.StageResponding)).Msg("stage")
		report := p.Responder.Respond(ctx, res)
		obs.HuntsSubmitted(len(report.Submitted))
	}

	return res, nil
}

// ArchiveKey is the object key of an archived result.
func ArchiveKey(res *domain.Result) string {
	return fmt.Sprintf("analyses/%s/%s/%s.json", res.ClientID, res.AnalysisID, res.Timestamp.UTC().Format("20060102T150405Z"))
}

func (p *Pipeline) archive(ctx context.Context, res *domain.Result, log zerolog.Logger) {
	if p.Archive == nil {
		return
	}
	url, err := p.Archive.PutJSON(ctx, ArchiveKey(res), res)
	if err != nil {
		log.Warn().Err(err).Msg("failed to archive analysis result")
		return
	}
	log.Info().Str("url", url).Msg("saved analysis results")
}

func (p *Pipeline) publish(ctx context.Context, res *domain.Result, log zerolog.Logger) {
	if p.Events == nil {
		return
	}
	if err := p.Events.PublishCompleted(ctx, res); err != nil {
		log.Warn().Err(err).Msg("failed to publish analysis completed event")
	}
	if p.Responder.ShouldRespond(res) {
		if err := p.Events.PublishHighRisk(ctx, res); err != nil {
			log.Warn().Err(err).Msg("failed to publish high risk event")
		}
	}
}

func (p *Pipeline) recordFailure(job domain.Job, stage domain.Stage, cause error, log zerolog.Logger) {
	if p.Failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	f := &domain.JobFailure{
		AnalysisID: job.AnalysisID(),
		ClientID:   job.ClientID,
		FlowID:     job.FlowID,
		Stage:      stage,
		Message:    cause.Error(),
		CreatedAt:  p.now(),
	}
	if err := p.Failures.Save(ctx, f); err != nil {
		log.Error().Err(err).Msg("failed to record analysis failure")
	}
}

func (p *Pipeline) observer() Observer {
	if p.Observer == nil {
		return nopObserver{}
	}
	return p.Observer
}

func (p *Pipeline) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock.Now()
}
