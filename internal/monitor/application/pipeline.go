package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	alerts "vitalwatch-cloud/internal/alerts/domain"
	"vitalwatch-cloud/internal/alerts/notify"
	devices "vitalwatch-cloud/internal/devices/domain"
	"vitalwatch-cloud/internal/observability/metrics"
	"vitalwatch-cloud/internal/stream"
	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

// ReadingSource produces one reading per device per cycle.
type ReadingSource interface {
	Generate(deviceID string) (telemetry.Reading, error)
}

// Broadcaster publishes events to live device subscribers.
type Broadcaster interface {
	Publish(event stream.Event)
}

// Pipeline runs the per-device cycle: generate a reading, evaluate it
// against thresholds, persist, broadcast. Persistence failures are
// reported but never stop the broadcast: live observers are not
// penalized for a storage hiccup.
type Pipeline struct {
	source      ReadingSource
	thresholds  alerts.Thresholds
	readings    telemetry.ReadingRepository
	alerts      alerts.AlertRepository
	broadcaster Broadcaster
	notifier    notify.Notifier
	logger      *log.Logger
}

// PipelineOption customizes the pipeline.
type PipelineOption func(*Pipeline)

// WithNotifier attaches an outbound alert notifier.
func WithNotifier(notifier notify.Notifier) PipelineOption {
	return func(p *Pipeline) {
		p.notifier = notifier
	}
}

// NewPipeline constructs a pipeline.
func NewPipeline(
	source ReadingSource,
	thresholds alerts.Thresholds,
	readingRepo telemetry.ReadingRepository,
	alertRepo alerts.AlertRepository,
	broadcaster Broadcaster,
	logger *log.Logger,
	opts ...PipelineOption,
) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("pipeline: nil reading source")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if readingRepo == nil || alertRepo == nil {
		return nil, errors.New("pipeline: nil repository")
	}
	if broadcaster == nil {
		return nil, errors.New("pipeline: nil broadcaster")
	}
	if logger == nil {
		return nil, errors.New("pipeline: nil logger")
	}
	pipeline := &Pipeline{
		source:      source,
		thresholds:  thresholds,
		readings:    readingRepo,
		alerts:      alertRepo,
		broadcaster: broadcaster,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(pipeline)
	}
	return pipeline, nil
}

// Run executes one cycle for one device. The reading is persisted and
// broadcast before any of its derived alerts; a failed write is dropped
// for this cycle and retried implicitly on the next one. The returned
// error is informational for the scheduler and never aborts siblings.
func (p *Pipeline) Run(ctx context.Context, device devices.Device) error {
	if p == nil {
		return errors.New("pipeline: nil pipeline")
	}
	if device.ID == "" {
		return errors.New("pipeline: empty device id")
	}

	reading, err := p.source.Generate(device.ID)
	if err != nil {
		metrics.IncPipelineFailure("generate")
		return err
	}
	reading.ID = uuid.NewString()
	metrics.IncReadingGenerated()

	var firstErr error
	readingPersisted := true
	if err := p.readings.Append(ctx, &reading); err != nil {
		metrics.IncPersistFailure("reading")
		p.logger.Printf("reading persist failed: device=%s ts=%s err=%v", device.ID, reading.RecordedAt.Format(time.RFC3339), err)
		firstErr = err
		readingPersisted = false
	}
	p.broadcaster.Publish(stream.ReadingEvent(reading))

	drafts := p.thresholds.Evaluate(reading)
	for _, draft := range drafts {
		alert := alerts.Alert{
			ID:        uuid.NewString(),
			DeviceID:  device.ID,
			SubjectID: device.SubjectID,
			Category:  draft.Category,
			Severity:  draft.Severity,
			Message:   draft.Message,
			Value:     draft.Value,
			RaisedAt:  reading.RecordedAt,
		}
		metrics.IncAlertEmitted(string(alert.Category), string(alert.Severity))
		// An alert is only stored when its reading is: a stored alert must
		// always trace back to a stored reading. Broadcast and notification
		// still go out either way.
		if readingPersisted {
			if err := p.alerts.Append(ctx, &alert); err != nil {
				metrics.IncPersistFailure("alert")
				p.logger.Printf("alert persist failed: device=%s category=%s err=%v", device.ID, alert.Category, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		p.broadcaster.Publish(stream.AlertEvent(alert))
		if p.notifier != nil {
			p.notifier.Notify(ctx, alert)
		}
	}
	return firstErr
}
