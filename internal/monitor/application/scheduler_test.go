package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	devices "vitalwatch-cloud/internal/devices/domain"
	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

type stubRegistry struct {
	mu      sync.Mutex
	fleet   []devices.Device
	err     error
	queries int
}

func (r *stubRegistry) ListEligible(context.Context) ([]devices.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]devices.Device, len(r.fleet))
	copy(out, r.fleet)
	return out, nil
}

func (r *stubRegistry) List(ctx context.Context) ([]devices.Device, error) {
	return r.ListEligible(ctx)
}

type panicSource struct {
	panicFor string
}

func (s *panicSource) Generate(deviceID string) (telemetry.Reading, error) {
	if deviceID == s.panicFor {
		panic("sensor decode failure")
	}
	return telemetry.Reading{
		DeviceID:     deviceID,
		TemperatureC: 37.0,
		HeartRateBPM: 100,
		HydrationPct: 90,
		RecordedAt:   testTime,
	}, nil
}

func eligibleDevice(id string) devices.Device {
	return devices.Device{ID: id, Status: devices.StatusConnected, SubjectID: "subject-" + id}
}

func newTestScheduler(t *testing.T, registry devices.Registry, pipeline *Pipeline, opts ...SchedulerOption) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(registry, pipeline, testLogger(), opts...)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return scheduler
}

func TestTickRunsEveryEligibleDevice(t *testing.T) {
	registry := &stubRegistry{fleet: []devices.Device{eligibleDevice("a"), eligibleDevice("b"), eligibleDevice("c")}}
	source := &stubSource{}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline)

	if err := scheduler.Tick(context.Background(), testTime); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if got := len(readingRepo.byDevice(id)); got != 1 {
			t.Fatalf("expected 1 reading for device %s, got %d", id, got)
		}
	}
}

func TestTickIsolatesFailingDevice(t *testing.T) {
	registry := &stubRegistry{fleet: []devices.Device{eligibleDevice("a"), eligibleDevice("b")}}
	source := &stubSource{}
	readingRepo := &stubReadingRepo{failFor: map[string]error{"a": errors.New("connection reset")}}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline)

	if err := scheduler.Tick(context.Background(), testTime); err != nil {
		t.Fatalf("Tick should absorb per-device failures, got %v", err)
	}
	if got := len(readingRepo.byDevice("a")); got != 0 {
		t.Fatalf("expected device a persistence dropped, got %d readings", got)
	}
	if got := len(readingRepo.byDevice("b")); got != 1 {
		t.Fatalf("expected device b persisted, got %d readings", got)
	}
	// Both readings are still broadcast: the failing store never gates the stream.
	if got := len(broadcaster.byDevice("a")); got != 1 {
		t.Fatalf("expected device a reading broadcast, got %d events", got)
	}
	if got := len(broadcaster.byDevice("b")); got != 1 {
		t.Fatalf("expected device b reading broadcast, got %d events", got)
	}
}

func TestTickIsolatesPanickingDevice(t *testing.T) {
	registry := &stubRegistry{fleet: []devices.Device{eligibleDevice("a"), eligibleDevice("b")}}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, &panicSource{panicFor: "a"}, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline)

	if err := scheduler.Tick(context.Background(), testTime); err != nil {
		t.Fatalf("Tick should contain a device panic, got %v", err)
	}
	if got := len(readingRepo.byDevice("b")); got != 1 {
		t.Fatalf("expected device b unaffected by sibling panic, got %d readings", got)
	}
}

func TestTickAbortsOnRegistryFailure(t *testing.T) {
	registry := &stubRegistry{err: errors.New("registry unavailable")}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, &stubSource{}, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline)

	if err := scheduler.Tick(context.Background(), testTime); err == nil {
		t.Fatal("expected registry error to abort the tick")
	}
	if len(readingRepo.appended) != 0 {
		t.Fatal("expected no pipeline runs after registry failure")
	}
}

func TestTickEmptyFleetIsNoop(t *testing.T) {
	registry := &stubRegistry{}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, &stubSource{}, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline)

	if err := scheduler.Tick(context.Background(), testTime); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(readingRepo.appended) != 0 || len(broadcaster.events) != 0 {
		t.Fatal("expected no activity for an empty fleet")
	}
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSource) Generate(deviceID string) (telemetry.Reading, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return telemetry.Reading{
		DeviceID:     deviceID,
		TemperatureC: 37.0,
		HeartRateBPM: 100,
		HydrationPct: 90,
		RecordedAt:   testTime,
	}, nil
}

func TestTickSkippedWhileInProgress(t *testing.T) {
	registry := &stubRegistry{fleet: []devices.Device{eligibleDevice("a")}}
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline)

	done := make(chan error, 1)
	go func() { done <- scheduler.Tick(context.Background(), testTime) }()

	<-source.entered
	if err := scheduler.Tick(context.Background(), testTime.Add(5*time.Second)); !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("expected ErrTickInProgress, got %v", err)
	}
	close(source.release)
	if err := <-done; err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// The guard clears once the tick finishes.
	if err := scheduler.Tick(context.Background(), testTime.Add(10*time.Second)); err != nil {
		t.Fatalf("follow-up tick: %v", err)
	}
}

func TestTickWorkerCapBoundsConcurrency(t *testing.T) {
	fleet := make([]devices.Device, 8)
	for i := range fleet {
		fleet[i] = eligibleDevice(string(rune('a' + i)))
	}
	registry := &stubRegistry{fleet: fleet}

	var mu sync.Mutex
	var inFlight, peak int
	source := &gaugeSource{
		observe: func() {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
	}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, source, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline, WithWorkerCap(2))

	if err := scheduler.Tick(context.Background(), testTime); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent pipelines, saw %d", peak)
	}
	if len(readingRepo.appended) != len(fleet) {
		t.Fatalf("expected %d readings, got %d", len(fleet), len(readingRepo.appended))
	}
}

type gaugeSource struct {
	observe func()
}

func (s *gaugeSource) Generate(deviceID string) (telemetry.Reading, error) {
	s.observe()
	return telemetry.Reading{
		DeviceID:     deviceID,
		TemperatureC: 37.0,
		HeartRateBPM: 100,
		HydrationPct: 90,
		RecordedAt:   testTime,
	}, nil
}

func TestStartStopLifecycle(t *testing.T) {
	registry := &stubRegistry{fleet: []devices.Device{eligibleDevice("a")}}
	readingRepo := &stubReadingRepo{}
	alertRepo := &stubAlertRepo{}
	broadcaster := &stubBroadcaster{}
	pipeline := newTestPipeline(t, &stubSource{}, readingRepo, alertRepo, broadcaster)
	scheduler := newTestScheduler(t, registry, pipeline, WithInterval(10*time.Millisecond))

	go scheduler.Start(context.Background())

	deadline := time.After(time.Second)
	for {
		readingRepo.mu.Lock()
		count := len(readingRepo.appended)
		readingRepo.mu.Unlock()
		if count >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler produced no readings before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := scheduler.Stop(ctx); err != nil {
		t.Fatalf("repeated Stop: %v", err)
	}

	readingRepo.mu.Lock()
	settled := len(readingRepo.appended)
	readingRepo.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	readingRepo.mu.Lock()
	after := len(readingRepo.appended)
	readingRepo.mu.Unlock()
	if after != settled {
		t.Fatalf("expected no ticks after Stop, readings went %d -> %d", settled, after)
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	registry := &stubRegistry{}
	pipeline := newTestPipeline(t, &stubSource{}, &stubReadingRepo{}, &stubAlertRepo{}, &stubBroadcaster{})

	if _, err := NewScheduler(nil, pipeline, testLogger()); err == nil {
		t.Fatal("expected error for nil registry")
	}
	if _, err := NewScheduler(registry, nil, testLogger()); err == nil {
		t.Fatal("expected error for nil pipeline")
	}
	if _, err := NewScheduler(registry, pipeline, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}
