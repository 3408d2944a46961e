// Package config loads runtime settings from defaults, an optional YAML file
// and NOTEDUR_* environment variables, and validates them before they reach
// the recorder.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jsphweid/midinotesduration/constants"
	"github.com/jsphweid/midinotesduration/note"
	"github.com/jsphweid/midinotesduration/recorder"
	"gopkg.in/yaml.v3"
)

type Config struct {
	WindowSize       int      `yaml:"window_size"`
	OutlierThreshold float64  `yaml:"outlier_threshold"`
	Addr             string   `yaml:"addr"`
	Channel          string   `yaml:"channel"`
	Device           string   `yaml:"device"`
	PreferredDevices []string `yaml:"preferred_devices"`
	LogLevel         string   `yaml:"log_level"`
	HistogramBins    int      `yaml:"histogram_bins"`
}

func Default() Config {
	return Config{
		WindowSize:       constants.DefaultWindowSize,
		OutlierThreshold: constants.DefaultOutlierThreshold,
		Addr:             constants.GetListenAddr(),
		Channel:          "all",
		PreferredDevices: []string{"Launchkey", "Novation"},
		LogLevel:         constants.GetLogLevel(),
		HistogramBins:    constants.DefaultHistogramBins,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(constants.EnvPrefix + "WINDOW_SIZE"); v != "" {
		n, err := ParseWindowSize(v)
		if err != nil {
			return err
		}
		cfg.WindowSize = n
	}
	if v := os.Getenv(constants.EnvPrefix + "OUTLIER_THRESHOLD"); v != "" {
		k, err := ParseOutlierThreshold(v)
		if err != nil {
			return err
		}
		cfg.OutlierThreshold = k
	}
	if v := os.Getenv(constants.EnvPrefix + "ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv(constants.EnvPrefix + "CHANNEL"); v != "" {
		cfg.Channel = v
	}
	if v := os.Getenv(constants.EnvPrefix + "DEVICE"); v != "" {
		cfg.Device = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if err := recorder.ValidateWindowSize(c.WindowSize); err != nil {
		errs = append(errs, err)
	}
	if err := recorder.ValidateOutlierThreshold(c.OutlierThreshold); err != nil {
		errs = append(errs, err)
	}
	if _, err := note.ParseChannel(c.Channel); err != nil {
		errs = append(errs, &recorder.ConfigError{Field: "channel", Value: c.Channel, Msg: err.Error()})
	}
	if c.HistogramBins <= 0 {
		errs = append(errs, &recorder.ConfigError{Field: "histogram bins", Value: c.HistogramBins, Msg: "must be a positive integer"})
	}
	return errors.Join(errs...)
}

// MidiChannel is only meaningful on a validated config.
func (c Config) MidiChannel() note.Channel {
	ch, _ := note.ParseChannel(c.Channel)
	return ch
}

func (c Config) RecorderOptions() []recorder.Option {
	return []recorder.Option{
		recorder.WithWindowSize(c.WindowSize),
		recorder.WithOutlierThreshold(c.OutlierThreshold),
	}
}

// ParseWindowSize parses user input for the window size. Anything but a
// positive integer is a *recorder.ConfigError.
func ParseWindowSize(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &recorder.ConfigError{Field: "window size", Value: s, Msg: "not an integer"}
	}
	if err := recorder.ValidateWindowSize(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ParseOutlierThreshold parses user input for the outlier threshold. "off"
// and "none" map to the disable sentinel.
func ParseOutlierThreshold(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "off" || s == "none" {
		return constants.DisableOutlierFilter, nil
	}
	k, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &recorder.ConfigError{Field: "outlier threshold", Value: s, Msg: "not a number"}
	}
	if err := recorder.ValidateOutlierThreshold(k); err != nil {
		return 0, err
	}
	return k, nil
}
