package analysis

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/application"
	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

const (
	flowListProcesses = "ListProcesses"
	flowNetstat       = "Netstat"
)

// ResponseReport summarises one automated response.
type ResponseReport struct {
	Submitted []domain.Hunt `json:"submitted"`
	// Unactioned are high-confidence IOCs with no defined follow-up (code_injection).
	Unactioned []domain.IOC `json:"unactioned,omitempty"`
	Failed     int          `json:"failed"`
}

// Responder launches follow-up hunts for high-confidence IOCs of high-risk results.
type Responder struct {
	Backend   domain.Backend
	Enabled   bool
	Threshold int
	Clock     application.Clock
	Log       zerolog.Logger
}

func (r *Responder) ShouldRespond(res *domain.Result) bool {
	return r != nil && r.Enabled && res.RiskAssessment.RiskScore >= r.Threshold
}

// Respond submits one hunt per high-confidence IOC. Submissions are independent:
// a failure is logged and the rest continue.
func (r *Responder) Respond(ctx context.Context, res *domain.Result) ResponseReport {
	report := ResponseReport{Submitted: []domain.Hunt{}}
	log := r.Log.With().Str("analysis_id", string(res.AnalysisID)).Logger()

	log.Warn().Str("client_id", res.ClientID).Int("risk_score", res.RiskAssessment.RiskScore).Msg("HIGH RISK ALERT")

	now := r.Clock.Now()
	for _, ioc := range res.HighConfidenceIOCs() {
		req, ok := HuntFor(ioc, now)
		if !ok {
			log.Info().Str("type", string(ioc.Kind)).Str("value", ioc.Value).Msg("no follow-up defined for IOC")
			report.Unactioned = append(report.Unactioned, ioc)
			continue
		}

		hunt, err := r.Backend.CreateHunt(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("hunt", req.Name).Msg("failed to create hunt for IOC")
			report.Failed++
			continue
		}
		if err := r.Backend.StartHunt(ctx, hunt.ID); err != nil {
			log.Error().Err(err).Str("hunt_id", hunt.ID).Str("hunt", req.Name).Msg("failed to start hunt")
			report.Failed++
			continue
		}

		log.Info().Str("hunt_id", hunt.ID).Str("hunt", req.Name).Msg("hunt started")
		report.Submitted = append(report.Submitted, hunt)
	}
	return report
}

// HuntFor maps an IOC to its follow-up hunt; false when the kind has none.
func HuntFor(ioc domain.IOC, now time.Time) (domain.HuntRequest, bool) {
	date := now.UTC().Format("20060102")
	switch ioc.Kind {
	case domain.KindProcess:
		return domain.HuntRequest{
			Name:        "IOC_Hunt_" + ioc.Value + "_" + date,
			FlowName:    flowListProcesses,
			FlowArgs:    map[string]any{"filename_regex": regexp.QuoteMeta(ioc.Value)},
			Description: "Hunting for suspicious process: " + ioc.Value,
		}, true
	case domain.KindNetwork:
		return domain.HuntRequest{
			Name:        "IOC_Hunt_IP_" + ioc.Value + "_" + date,
			FlowName:    flowNetstat,
			FlowArgs:    map[string]any{},
			Description: "Hunting for connections to: " + ioc.Value,
		}, true
	}
	return domain.HuntRequest{}, false
}
