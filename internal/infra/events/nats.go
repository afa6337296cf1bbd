package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

const (
	SubjectCompleted = "memtriage.analysis.completed"
	SubjectHighRisk  = "memtriage.analysis.high_risk"

	eventSource        = "memtriage/worker"
	typeCompleted      = "io.memtriage.analysis.completed"
	typeHighRisk       = "io.memtriage.analysis.high_risk"
	subjectWildcard    = "memtriage.analysis.>"
	cloudEventsVersion = "1.0"
)

// CloudEvent is the envelope of every published event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            time.Time   `json:"time"`
	Data            interface{} `json:"data"`
}

// AnalysisEventData is a compact view of a result; module records are not sent.
type AnalysisEventData struct {
	AnalysisID         string         `json:"analysis_id"`
	ClientID           string         `json:"client_id"`
	FlowID             string         `json:"flow_id"`
	RiskScore          int            `json:"risk_score"`
	ScoreSource        string         `json:"score_source"`
	IOCCount           int            `json:"ioc_count"`
	HighConfidenceIOCs []analysis.IOC `json:"high_confidence_iocs"`
	RecommendedActions []string       `json:"recommended_actions"`
	FailedModules      []string       `json:"failed_modules,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher publishes analysis events to JetStream.
type Publisher struct {
	js  publisher
	log zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, log: log}
}

// Connect dials NATS, ensures the stream exists and returns a Publisher.
func Connect(ctx context.Context, natsURL, streamName string, log zerolog.Logger, opts ...nats.Option) (*Publisher, *nats.Conn, error) {
	opts = append(opts,
		nats.Name("memtriage"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, streamName); err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subjectWildcard},
		})
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", streamName, err)
		}
	}

	return NewPublisher(js, log), nc, nil
}

// PublishCompleted announces a persisted analysis.
func (p *Publisher) PublishCompleted(ctx context.Context, r *analysis.Result) error {
	return p.publish(ctx, SubjectCompleted, typeCompleted, r)
}

// PublishHighRisk announces an analysis at or above the response threshold.
func (p *Publisher) PublishHighRisk(ctx context.Context, r *analysis.Result) error {
	return p.publish(ctx, SubjectHighRisk, typeHighRisk, r)
}

func (p *Publisher) publish(ctx context.Context, subject, eventType string, r *analysis.Result) error {
	event := CloudEvent{
		SpecVersion:     cloudEventsVersion,
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            r.Timestamp,
		Data:            NewAnalysisEventData(r),
	}

	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	// analysis id as msg id lets JetStream drop re-publishes of the same result
	ack, err := p.js.Publish(ctx, subject, b, jetstream.WithMsgID(string(r.AnalysisID)+"/"+eventType+"/"+r.Timestamp.Format(time.RFC3339Nano)))
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.log.Debug().Str("event_id", event.ID).Str("subject", subject).Uint64("seq", ack.Sequence).Msg("published event")
	return nil
}

func NewAnalysisEventData(r *analysis.Result) AnalysisEventData {
	high := r.HighConfidenceIOCs()
	if high == nil {
		high = []analysis.IOC{}
	}
	actions := r.RiskAssessment.RecommendedActions
	if actions == nil {
		actions = []string{}
	}
	return AnalysisEventData{
		AnalysisID:         string(r.AnalysisID),
		ClientID:           r.ClientID,
		FlowID:             r.FlowID,
		RiskScore:          r.RiskAssessment.RiskScore,
		ScoreSource:        string(r.RiskAssessment.ScoreSource),
		IOCCount:           len(r.IOCs),
		HighConfidenceIOCs: high,
		RecommendedActions: actions,
		FailedModules:      r.ModuleResults.Failures(),
		Timestamp:          r.Timestamp,
	}
}
