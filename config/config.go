package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultMemory        = 256 * 1024 * 1024
	DefaultTickPeriod    = time.Second
	DefaultMonitorPeriod = 100 * time.Millisecond
	DefaultRegistry      = "https://formulae.brew.sh/api/formula/"
)

// Duration reads either a Go duration string ("250ms") or a number of
// milliseconds from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val) * time.Millisecond)
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return errors.Wrapf(err, "parsing duration %q", val)
		}
		*d = Duration(dur)
	default:
		return errors.Errorf("invalid duration %s", string(b))
	}

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type Config struct {
	MemoryBytes   uint64   `json:"memory_bytes"`
	TickPeriod    Duration `json:"tick_period"`
	MonitorPeriod Duration `json:"monitor_period"`
	LogLevel      string   `json:"log_level"`
	Registry      string   `json:"registry"`
}

func Default() *Config {
	return &Config{
		MemoryBytes:   DefaultMemory,
		TickPeriod:    Duration(DefaultTickPeriod),
		MonitorPeriod: Duration(DefaultMonitorPeriod),
		LogLevel:      "info",
		Registry:      DefaultRegistry,
	}
}

// Load starts from Default and overlays the JSON file at path. An empty path
// just returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening config")
	}

	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}

	return cfg, cfg.Validate()
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	if c.MemoryBytes < 4096 {
		return errors.Wrapf(ErrInvalidConfig, "memory_bytes=%d is smaller than one page", c.MemoryBytes)
	}

	if c.TickPeriod <= 0 {
		return errors.Wrap(ErrInvalidConfig, "tick_period must be positive")
	}

	if c.MonitorPeriod <= 0 {
		return errors.Wrap(ErrInvalidConfig, "monitor_period must be positive")
	}

	return nil
}
