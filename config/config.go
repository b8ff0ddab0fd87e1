package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/smartcharge/core/charge"
	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/factory"
	"github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/core/pricing"
	"github.com/kilianp07/smartcharge/infra/psa"
)

// EnvPrefix marks environment variables overriding file values.
// SC_RETRY__READ__DELAY=10s sets retry.read.delay.
const EnvPrefix = "SC_"

type Config struct {
	Vehicle  psa.Config     `json:"vehicle"`
	Charging charge.Profile `json:"charging"`
	Window   pricing.Window `json:"window"`
	// DefaultStart is committed whenever no price run can be obtained.
	DefaultStart clock.Time           `json:"default_start"`
	Schedule     ScheduleConfig       `json:"schedule"`
	Retry        RetryConfig          `json:"retry"`
	Oracle       factory.ModuleConfig `json:"oracle"`
	Sink         factory.ModuleConfig `json:"sink"`
	Metrics      metrics.Config       `json:"metrics"`
	Logging      LoggingConfig        `json:"logging"`
}

var (
	defaultStart = clock.Time{Hour: 2}
	defaultAt    = clock.Time{Hour: 20}
)

// Default returns a Config holding the time-of-day defaults. Every
// midnight-capable field is set here, so SetDefaults never has to guess
// whether 00:00 was meant.
func Default() *Config {
	return &Config{
		Window:       pricing.DefaultWindow(),
		DefaultStart: defaultStart,
		Schedule:     ScheduleConfig{At: defaultAt},
	}
}

func defaultValues() map[string]any {
	d := Default()
	return map[string]any{
		"window.start":  d.Window.Start.String(),
		"window.end":    d.Window.End.String(),
		"default_start": d.DefaultStart.String(),
		"schedule.at":   d.Schedule.At.String(),
	}
}

// Load reads the YAML or JSON file at path over the built-in defaults,
// applies environment overrides, fills the remaining defaults and validates
// the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section left empty. Times of day are not touched;
// see Default. The psa command sink reuses
// the vehicle section unless configured explicitly.
func (c *Config) SetDefaults() {
	c.Vehicle.SetDefaults()
	c.Charging.SetDefaults()
	c.Schedule.SetDefaults()
	c.Retry.SetDefaults()
	if c.Oracle.Type == "" {
		c.Oracle.Type = "sahkohinta"
	}
	if c.Oracle.Type == "sahkohinta" {
		if c.Oracle.Conf == nil {
			c.Oracle.Conf = map[string]any{}
		}
		if _, ok := c.Oracle.Conf["timezone"]; !ok {
			c.Oracle.Conf["timezone"] = c.Schedule.Timezone
		}
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "psa"
	}
	if c.Sink.Type == "psa" && len(c.Sink.Conf) == 0 {
		c.Sink.Conf = map[string]any{
			"base_url": c.Vehicle.BaseURL,
			"vin":      c.Vehicle.VIN,
			"timeout":  c.Vehicle.Timeout.String(),
		}
	}
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Vehicle.Validate(); err != nil {
		return fmt.Errorf("vehicle: %w", err)
	}
	if err := c.Charging.Validate(); err != nil {
		return fmt.Errorf("charging: %w", err)
	}
	if c.Window.Start == c.Window.End {
		return fmt.Errorf("window: start and end must differ")
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
