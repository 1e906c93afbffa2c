// Package config provides configuration loading and validation for zkbench.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full benchmark configuration.
//
// Example YAML:
//
//	address: "zk1:2181,zk2:2181,zk3:2181"
//	root: /benchmark
//	mode: ephemeral-sequential
//	sessions: shared
//	workers: 1000
//	duration: 10s
//	batch: 100
//	settle:
//	  strategy: poll
//	  interval: 250ms
//	  timeout: 10s
type Config struct {
	// Address is a comma-separated server list, or mem:// for the
	// in-process service.
	Address string `json:"address" yaml:"address"`

	// Root is the benchmark root node. It is recreated on every run.
	Root string `json:"root" yaml:"root"`

	// Prefix is the child node name prefix.
	Prefix string `json:"prefix" yaml:"prefix"`

	// Mode is one of: ephemeral, ephemeral-sequential, persistent-sequential, persistent
	Mode string `json:"mode" yaml:"mode"`

	// Sessions is "shared" or "per-worker"
	Sessions string `json:"sessions" yaml:"sessions"`

	// Workers is the number of concurrent workers
	Workers int `json:"workers" yaml:"workers"`

	// Duration is the measurement window
	Duration Duration `json:"duration" yaml:"duration"`

	// Batch is the number of creates per request
	Batch int `json:"batch" yaml:"batch"`

	// Rate caps creates per second per worker, 0 = unlimited
	Rate float64 `json:"rate" yaml:"rate"`

	// SessionTimeout is negotiated with the service
	SessionTimeout Duration `json:"sessionTimeout" yaml:"sessionTimeout"`

	// ConnectTimeout bounds session establishment
	ConnectTimeout Duration `json:"connectTimeout" yaml:"connectTimeout"`

	// Settle controls the pause between the last create and the count
	Settle SettleConfig `json:"settle" yaml:"settle"`

	// Cleanup deletes the root after counting
	Cleanup bool `json:"cleanup" yaml:"cleanup"`
}

// SettleConfig controls the settle step.
type SettleConfig struct {
	// Strategy is "fixed" or "poll"
	Strategy string `json:"strategy" yaml:"strategy"`

	// Delay is the fixed settle delay
	Delay Duration `json:"delay" yaml:"delay"`

	// Interval between child-count samples when polling
	Interval Duration `json:"interval" yaml:"interval"`

	// Timeout bounds polling
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// Settle strategies.
const (
	SettleFixed = "fixed"
	SettlePoll  = "poll"
)

// MemoryAddress selects the in-process coordination service.
const MemoryAddress = "mem://"

// Default returns the configuration used when neither a file nor flags
// say otherwise.
func Default() *Config {
	return &Config{
		Address:        "127.0.0.1:2181",
		Root:           "/benchmark",
		Prefix:         "node_",
		Mode:           "ephemeral-sequential",
		Sessions:       "shared",
		Workers:        10,
		Duration:       Duration(10 * time.Second),
		Batch:          1,
		SessionTimeout: Duration(10 * time.Second),
		ConnectTimeout: Duration(5 * time.Second),
		Settle: SettleConfig{
			Strategy: SettleFixed,
			Delay:    Duration(time.Second),
			Interval: Duration(250 * time.Millisecond),
			Timeout:  Duration(10 * time.Second),
		},
	}
}

// IsMemory reports whether the address selects the in-process service.
func (c *Config) IsMemory() bool {
	return strings.HasPrefix(strings.TrimSpace(c.Address), MemoryAddress)
}

// Duration is a time.Duration that can be unmarshaled from "30s"-style
// strings or from a bare number of seconds.
type Duration time.Duration

// ParseDurationString parses "30s", "1h30m" or "30" (seconds). The empty
// string is zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	dur, err := ParseDurationString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
