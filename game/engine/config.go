package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config validation")

// Duration is a time.Duration that reads either a Go duration string
// ("1s", "250ms") or a plain number of milliseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes the duration string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1.5s" or 1500.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(FromMillis(v))
		return nil
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration at line %d", value.Line)
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(FromMillis(ms))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the trial parameters. It is immutable once a session starts.
type Config struct {
	Name               string   `json:"name" yaml:"name"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty"`
	AttemptsPerSession int      `json:"attempts_per_session" yaml:"attempts_per_session"`
	NumberOfStimuli    int      `json:"number_of_stimuli" yaml:"number_of_stimuli"`
	StimulusOnInterval Duration `json:"stimulus_on_interval" yaml:"stimulus_on_interval"`
	MinHoldDuration    Duration `json:"min_hold_duration" yaml:"min_hold_duration"`
	MaxHoldDuration    Duration `json:"max_hold_duration" yaml:"max_hold_duration"`
	ResponseTimeout    Duration `json:"response_timeout_after_go" yaml:"response_timeout_after_go"`
	// ResultDisplay, when positive, advances to the next attempt automatically.
	ResultDisplay  Duration `json:"result_display,omitempty" yaml:"result_display,omitempty"`
	DebounceWindow Duration `json:"debounce_window,omitempty" yaml:"debounce_window,omitempty"`
}

// DefaultConfig returns the classic five-light setup.
func DefaultConfig() *Config {
	return &Config{
		Name:               "classic",
		Description:        "Five lights, one second apart, random hold before lights out",
		AttemptsPerSession: 5,
		NumberOfStimuli:    5,
		StimulusOnInterval: Duration(time.Second),
		MinHoldDuration:    Duration(200 * time.Millisecond),
		MaxHoldDuration:    Duration(3 * time.Second),
		ResponseTimeout:    Duration(2 * time.Second),
		DebounceWindow:     Duration(50 * time.Millisecond),
	}
}

// ValidateConfig checks a configuration for correctness. It never clamps.
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if config.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}

	if config.AttemptsPerSession < MinAttemptsPerSession || config.AttemptsPerSession > MaxAttemptsPerSession {
		return fmt.Errorf("%w: attempts_per_session must be between %d and %d, got %d",
			ErrInvalidConfig, MinAttemptsPerSession, MaxAttemptsPerSession, config.AttemptsPerSession)
	}
	if config.NumberOfStimuli < MinStimuli || config.NumberOfStimuli > MaxStimuli {
		return fmt.Errorf("%w: number_of_stimuli must be between %d and %d, got %d",
			ErrInvalidConfig, MinStimuli, MaxStimuli, config.NumberOfStimuli)
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"stimulus_on_interval", config.StimulusOnInterval},
		{"min_hold_duration", config.MinHoldDuration},
		{"max_hold_duration", config.MaxHoldDuration},
		{"response_timeout_after_go", config.ResponseTimeout},
		{"result_display", config.ResultDisplay},
		{"debounce_window", config.DebounceWindow},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidConfig, d.name, d.value)
		}
		if d.value.Std() > MaxDuration {
			return fmt.Errorf("%w: %s must not exceed %s, got %s", ErrInvalidConfig, d.name, MaxDuration, d.value)
		}
	}

	if config.MinHoldDuration > config.MaxHoldDuration {
		return fmt.Errorf("%w: min_hold_duration (%s) must not exceed max_hold_duration (%s)",
			ErrInvalidConfig, config.MinHoldDuration, config.MaxHoldDuration)
	}
	if config.ResponseTimeout <= 0 {
		return fmt.Errorf("%w: response_timeout_after_go must be positive", ErrInvalidConfig)
	}

	return nil
}

// ParseConfig decodes a configuration by file extension (.json, .yaml, .yml)
// and validates it.
func ParseConfig(filename string, data []byte) (*Config, error) {
	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(filename, data)
}

// SequenceBounds returns the shortest and longest time from arming to the go
// signal for this configuration.
func (c *Config) SequenceBounds() (earliest, latest time.Duration) {
	arming := time.Duration(c.NumberOfStimuli) * c.StimulusOnInterval.Std()
	return arming + c.MinHoldDuration.Std(), arming + c.MaxHoldDuration.Std()
}
