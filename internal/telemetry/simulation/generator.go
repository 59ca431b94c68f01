package simulation

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

// Ranges configures the synthetic vitals distribution. Generator ranges
// and policy thresholds are configured independently; with defaults the
// heart-rate range sits entirely inside the alert band, so synthetic
// heart-rate alerts only arise from non-default configuration.
type Ranges struct {
	FeverProbability     float64 `yaml:"fever_probability"`
	TemperatureNormalMin float64 `yaml:"temperature_normal_min"`
	TemperatureNormalMax float64 `yaml:"temperature_normal_max"`
	TemperatureFeverMin  float64 `yaml:"temperature_fever_min"`
	TemperatureFeverMax  float64 `yaml:"temperature_fever_max"`
	HeartRateMin         int     `yaml:"heart_rate_min"`
	HeartRateMax         int     `yaml:"heart_rate_max"`
	HydrationMin         int     `yaml:"hydration_min"`
	HydrationMax         int     `yaml:"hydration_max"`
}

// DefaultRanges returns the standard simulation distribution.
func DefaultRanges() Ranges {
	return Ranges{
		FeverProbability:     0.05,
		TemperatureNormalMin: 36.5,
		TemperatureNormalMax: 37.5,
		TemperatureFeverMin:  38.0,
		TemperatureFeverMax:  39.5,
		HeartRateMin:         90,
		HeartRateMax:         160,
		HydrationMin:         80,
		HydrationMax:         100,
	}
}

// Validate checks range invariants.
func (r Ranges) Validate() error {
	if r.FeverProbability < 0 || r.FeverProbability > 1 {
		return errors.New("generator: fever probability out of [0,1]")
	}
	if r.TemperatureNormalMax <= r.TemperatureNormalMin {
		return errors.New("generator: invalid normal temperature range")
	}
	if r.TemperatureFeverMax <= r.TemperatureFeverMin {
		return errors.New("generator: invalid fever temperature range")
	}
	if r.HeartRateMax < r.HeartRateMin {
		return errors.New("generator: invalid heart rate range")
	}
	if r.HydrationMax < r.HydrationMin {
		return errors.New("generator: invalid hydration range")
	}
	return nil
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Generator produces one synthetic vitals reading per device per cycle.
// It has no side effects beyond consuming the random source, and is safe
// for concurrent use from per-device pipelines.
type Generator struct {
	mu     sync.Mutex
	ranges Ranges
	rng    *rand.Rand
	clock  Clock
}

// Option customizes the generator.
type Option func(*Generator)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGenerator constructs a generator. The random source is injected so
// tests are deterministic.
func NewGenerator(ranges Ranges, source rand.Source, opts ...Option) (*Generator, error) {
	if err := ranges.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("generator: nil random source")
	}
	gen := &Generator{
		ranges: ranges,
		rng:    rand.New(source),
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(gen)
	}
	return gen, nil
}

// Generate produces a reading for the device, stamped with the current
// time. The identifier is left empty; the pipeline assigns it.
// Temperature is rounded to one decimal after the draw, so a value can
// land exactly on a range bound (37.46 becomes 37.5). Consumers treat
// the bounds as inclusive; do not reorder the rounding to avoid this.
func (g *Generator) Generate(deviceID string) (telemetry.Reading, error) {
	if deviceID == "" {
		return telemetry.Reading{}, errors.New("generator: empty device id")
	}

	g.mu.Lock()
	fever := g.rng.Float64() < g.ranges.FeverProbability
	var temp float64
	if fever {
		temp = g.ranges.TemperatureFeverMin + g.rng.Float64()*(g.ranges.TemperatureFeverMax-g.ranges.TemperatureFeverMin)
	} else {
		temp = g.ranges.TemperatureNormalMin + g.rng.Float64()*(g.ranges.TemperatureNormalMax-g.ranges.TemperatureNormalMin)
	}
	hr := g.ranges.HeartRateMin + g.rng.Intn(g.ranges.HeartRateMax-g.ranges.HeartRateMin+1)
	hydration := g.ranges.HydrationMin + g.rng.Intn(g.ranges.HydrationMax-g.ranges.HydrationMin+1)
	g.mu.Unlock()

	return telemetry.Reading{
		DeviceID:     deviceID,
		TemperatureC: math.Round(temp*10) / 10,
		HeartRateBPM: float64(hr),
		HydrationPct: float64(hydration),
		RecordedAt:   g.clock.Now(),
	}, nil
}
