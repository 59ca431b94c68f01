package application

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	alerts "vitalwatch-cloud/internal/alerts/domain"
	"vitalwatch-cloud/internal/telemetry/simulation"
)

// Config defines the monitoring core configuration. Thresholds and
// generator ranges are deliberately separate surfaces; keeping the
// synthetic ranges inside or outside the alert bands is an operator
// decision, not a coupling.
type Config struct {
	Thresholds     alerts.Thresholds `yaml:"thresholds"`
	Generator      simulation.Ranges `yaml:"generator"`
	QueueDepth     int               `yaml:"queue_depth"`
	WorkerCap      int               `yaml:"worker_cap"`
	WebhookURL     string            `yaml:"webhook_url"`
	NotifyTemplate string            `yaml:"notify_template"`

	TickInterval   time.Duration `yaml:"-"`
	ShutdownGrace  time.Duration `yaml:"-"`
	NotifyTimeout  time.Duration `yaml:"-"`
	NotifyCooldown time.Duration `yaml:"-"`
}

// LoadConfig loads config from defaults, an optional yaml file pointed
// to by MONITOR_CONFIG, and env overrides, in that order.
func LoadConfig() (Config, error) {
	cfg := Config{
		Thresholds:    alerts.DefaultThresholds(),
		Generator:     simulation.DefaultRanges(),
		QueueDepth:    16,
		TickInterval:  5 * time.Second,
		ShutdownGrace: 5 * time.Second,
		NotifyTimeout: 5 * time.Second,
	}

	if path := os.Getenv("MONITOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.TickInterval = getenvDuration("MONITOR_TICK_INTERVAL", cfg.TickInterval)
	cfg.ShutdownGrace = getenvDuration("MONITOR_SHUTDOWN_GRACE", cfg.ShutdownGrace)
	cfg.QueueDepth = getenvIntDefault("MONITOR_QUEUE_DEPTH", cfg.QueueDepth)
	cfg.WorkerCap = getenvIntDefault("MONITOR_WORKER_CAP", cfg.WorkerCap)

	cfg.Thresholds.TemperatureMax = getenvFloatDefault("MONITOR_TEMPERATURE_MAX", cfg.Thresholds.TemperatureMax)
	cfg.Thresholds.HeartRateMin = getenvFloatDefault("MONITOR_HEART_RATE_MIN", cfg.Thresholds.HeartRateMin)
	cfg.Thresholds.HeartRateMax = getenvFloatDefault("MONITOR_HEART_RATE_MAX", cfg.Thresholds.HeartRateMax)
	cfg.Thresholds.HydrationMin = getenvFloatDefault("MONITOR_HYDRATION_MIN", cfg.Thresholds.HydrationMin)
	cfg.Generator.FeverProbability = getenvFloatDefault("MONITOR_FEVER_PROBABILITY", cfg.Generator.FeverProbability)

	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	}
	if cfg.NotifyTemplate == "" {
		cfg.NotifyTemplate = os.Getenv("ALERT_NOTIFY_TEMPLATE")
	}
	cfg.NotifyTimeout = getenvDuration("ALERT_NOTIFY_TIMEOUT", cfg.NotifyTimeout)
	cfg.NotifyCooldown = getenvDuration("ALERT_NOTIFY_COOLDOWN", cfg.NotifyCooldown)

	if err := cfg.Thresholds.Validate(); err != nil {
		return cfg, err
	}
	if err := cfg.Generator.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
