package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	alerts "vitalwatch-cloud/internal/alerts/domain"
	devices "vitalwatch-cloud/internal/devices/domain"
	"vitalwatch-cloud/internal/stream"
	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	mu       sync.Mutex
	readings map[string]telemetry.Reading
	err      error
}

func (s *stubSource) Generate(deviceID string) (telemetry.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return telemetry.Reading{}, s.err
	}
	if reading, ok := s.readings[deviceID]; ok {
		return reading, nil
	}
	return telemetry.Reading{
		DeviceID:     deviceID,
		TemperatureC: 37.0,
		HeartRateBPM: 100,
		HydrationPct: 90,
		RecordedAt:   testTime,
	}, nil
}

type stubReadingRepo struct {
	mu       sync.Mutex
	appended []telemetry.Reading
	failFor  map[string]error
}

func (r *stubReadingRepo) Append(_ context.Context, reading *telemetry.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[reading.DeviceID]; err != nil {
		return err
	}
	r.appended = append(r.appended, *reading)
	return nil
}

func (r *stubReadingRepo) byDevice(deviceID string) []telemetry.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.Reading
	for _, reading := range r.appended {
		if reading.DeviceID == deviceID {
			out = append(out, reading)
		}
	}
	return out
}

type stubAlertRepo struct {
	mu       sync.Mutex
	appended []alerts.Alert
	failFor  map[string]error
}

func (r *stubAlertRepo) Append(_ context.Context, alert *alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[alert.DeviceID]; err != nil {
		return err
	}
	r.appended = append(r.appended, *alert)
	return nil
}

func (r *stubAlertRepo) byDevice(deviceID string) []alerts.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alerts.Alert
	for _, alert := range r.appended {
		if alert.DeviceID == deviceID {
			out = append(out, alert)
		}
	}
	return out
}

type stubBroadcaster struct {
	mu     sync.Mutex
	events []stream.Event
}

func (b *stubBroadcaster) Publish(event stream.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *stubBroadcaster) byDevice(deviceID string) []stream.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []stream.Event
	for _, event := range b.events {
		if event.DeviceID == deviceID {
			out = append(out, event)
		}
	}
	return out
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestPipeline(t *testing.T, source ReadingSource, readings telemetry.ReadingRepository, alertRepo alerts.AlertRepository, broadcaster Broadcaster) *Pipeline {
	t.Helper()
	pipeline, err := NewPipeline(source, alerts.DefaultThresholds(), readings, alertRepo, broadcaster, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return pipeline
}

func TestPipelineNormalReadingNoAlerts(t *testing.T) {
	source := &stubSource{}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)

	device := devices.Device{ID: "soother-001", Status: devices.StatusConnected, SubjectID: "subject-1"}
	if err := pipeline.Run(context.Background(), device); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := readingRepo.byDevice("soother-001")
	if len(stored) != 1 {
		t.Fatalf("expected 1 persisted reading, got %d", len(stored))
	}
	if stored[0].ID == "" {
		t.Fatal("expected assigned reading id")
	}
	if len(alertRepo.appended) != 0 {
		t.Fatalf("expected no alerts for normal reading, got %d", len(alertRepo.appended))
	}
	events := broadcaster.byDevice("soother-001")
	if len(events) != 1 || events[0].Kind != stream.EventKindReading {
		t.Fatalf("expected a single reading event, got %+v", events)
	}
}

func TestPipelineFeverReadingRaisesCriticalAlert(t *testing.T) {
	source := &stubSource{readings: map[string]telemetry.Reading{
		"soother-001": {
			DeviceID:     "soother-001",
			TemperatureC: 38.7,
			HeartRateBPM: 100,
			HydrationPct: 90,
			RecordedAt:   testTime,
		},
	}}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)

	device := devices.Device{ID: "soother-001", Status: devices.StatusConnected, SubjectID: "subject-1"}
	if err := pipeline.Run(context.Background(), device); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := alertRepo.byDevice("soother-001")
	if len(stored) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(stored))
	}
	alert := stored[0]
	if alert.Category != alerts.CategoryTemperature || alert.Severity != alerts.SeverityCritical {
		t.Fatalf("unexpected alert classification: %s/%s", alert.Category, alert.Severity)
	}
	if alert.SubjectID != "subject-1" {
		t.Fatalf("expected subject carried onto alert, got %q", alert.SubjectID)
	}
	if !alert.RaisedAt.Equal(testTime) {
		t.Fatalf("expected alert timestamp %s, got %s", testTime, alert.RaisedAt)
	}

	events := broadcaster.byDevice("soother-001")
	if len(events) != 2 {
		t.Fatalf("expected reading + alert events, got %d", len(events))
	}
	if events[0].Kind != stream.EventKindReading || events[1].Kind != stream.EventKindAlert {
		t.Fatalf("expected reading broadcast before alert, got %s then %s", events[0].Kind, events[1].Kind)
	}
}

func TestPipelineBroadcastsDespitePersistenceFailure(t *testing.T) {
	source := &stubSource{}
	readingRepo := &stubReadingRepo{failFor: map[string]error{"soother-001": errors.New("connection reset")}}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)

	device := devices.Device{ID: "soother-001", Status: devices.StatusConnected, SubjectID: "subject-1"}
	err := pipeline.Run(context.Background(), device)
	if err == nil {
		t.Fatal("expected error from failed persistence")
	}
	events := broadcaster.byDevice("soother-001")
	if len(events) != 1 || events[0].Kind != stream.EventKindReading {
		t.Fatalf("expected reading still broadcast, got %+v", events)
	}
}

func TestPipelineSkipsAlertPersistWhenReadingPersistFails(t *testing.T) {
	source := &stubSource{readings: map[string]telemetry.Reading{
		"soother-001": {
			DeviceID:     "soother-001",
			TemperatureC: 38.7,
			HeartRateBPM: 100,
			HydrationPct: 90,
			RecordedAt:   testTime,
		},
	}}
	readingRepo := &stubReadingRepo{failFor: map[string]error{"soother-001": errors.New("connection reset")}}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)

	device := devices.Device{ID: "soother-001", Status: devices.StatusConnected, SubjectID: "subject-1"}
	if err := pipeline.Run(context.Background(), device); err == nil {
		t.Fatal("expected error from failed persistence")
	}

	// A stored alert must always trace back to a stored reading, so a
	// dropped reading drops its alerts from storage too.
	if got := len(alertRepo.byDevice("soother-001")); got != 0 {
		t.Fatalf("expected no persisted alerts without a persisted reading, got %d", got)
	}
	if got := len(readingRepo.byDevice("soother-001")); got != 0 {
		t.Fatalf("expected no persisted readings, got %d", got)
	}

	// Live observers still see both events.
	events := broadcaster.byDevice("soother-001")
	if len(events) != 2 {
		t.Fatalf("expected reading + alert events, got %d", len(events))
	}
	if events[0].Kind != stream.EventKindReading || events[1].Kind != stream.EventKindAlert {
		t.Fatalf("expected reading broadcast before alert, got %s then %s", events[0].Kind, events[1].Kind)
	}
}

func TestPipelineGenerateFailureStopsCycle(t *testing.T) {
	source := &stubSource{err: errors.New("sensor offline")}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)

	device := devices.Device{ID: "soother-001", Status: devices.StatusConnected, SubjectID: "subject-1"}
	if err := pipeline.Run(context.Background(), device); err == nil {
		t.Fatal("expected generate error")
	}
	if len(readingRepo.appended) != 0 || len(broadcaster.events) != 0 {
		t.Fatal("expected no persistence or broadcast after generate failure")
	}
}

func TestNewPipelineValidation(t *testing.T) {
	source := &stubSource{}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}

	if _, err := NewPipeline(nil, alerts.DefaultThresholds(), readingRepo, alertRepo, broadcaster, testLogger()); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewPipeline(source, alerts.Thresholds{}, readingRepo, alertRepo, broadcaster, testLogger()); err == nil {
		t.Fatal("expected error for invalid thresholds")
	}
	if _, err := NewPipeline(source, alerts.DefaultThresholds(), nil, alertRepo, broadcaster, testLogger()); err == nil {
		t.Fatal("expected error for nil reading repository")
	}
	if _, err := NewPipeline(source, alerts.DefaultThresholds(), readingRepo, alertRepo, nil, testLogger()); err == nil {
		t.Fatal("expected error for nil broadcaster")
	}
	if _, err := NewPipeline(source, alerts.DefaultThresholds(), readingRepo, alertRepo, broadcaster, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}
