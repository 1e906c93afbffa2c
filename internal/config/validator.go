package config

import (
	"fmt"
	"strings"

	"github.com/wesleyorama2/zkbench/internal/coord"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the configuration after file values and flags have been
// merged.
//
// Returns nil if valid, or a *ValidationErrors containing every problem.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(c.Address) == "" {
		errs.Add("address", "address is required")
	} else if !c.IsMemory() && len(coord.ParseServers(c.Address)) == 0 {
		errs.Add("address", "no servers in address")
	}

	switch {
	case !strings.HasPrefix(c.Root, "/"):
		errs.Add("root", "root must be an absolute path")
	case coord.Clean(c.Root) == "/":
		errs.Add("root", "root must not be /")
	}

	if c.Prefix == "" {
		errs.Add("prefix", "prefix is required")
	} else if strings.Contains(c.Prefix, "/") {
		errs.Add("prefix", "prefix must not contain '/'")
	}

	if _, err := coord.ParseMode(c.Mode); err != nil {
		errs.Add("mode", err.Error())
	}

	switch c.Sessions {
	case "shared", "per-worker":
	default:
		errs.Add("sessions", fmt.Sprintf("sessions must be 'shared' or 'per-worker', got %q", c.Sessions))
	}

	if c.Workers < 0 {
		errs.Add("workers", "workers must be >= 0")
	}
	if c.Duration <= 0 {
		errs.Add("duration", "duration must be > 0")
	}
	if c.Batch < 1 {
		errs.Add("batch", "batch must be >= 1")
	}
	if c.Rate < 0 {
		errs.Add("rate", "rate must be >= 0")
	}
	if c.SessionTimeout <= 0 {
		errs.Add("sessionTimeout", "sessionTimeout must be > 0")
	}
	if c.ConnectTimeout <= 0 {
		errs.Add("connectTimeout", "connectTimeout must be > 0")
	}

	validateSettle(&c.Settle, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSettle(s *SettleConfig, errs *ValidationErrors) {
	switch s.Strategy {
	case SettleFixed:
		if s.Delay < 0 {
			errs.Add("settle.delay", "delay must be >= 0")
		}
	case SettlePoll:
		if s.Interval <= 0 {
			errs.Add("settle.interval", "interval must be > 0")
		}
		if s.Timeout < s.Interval {
			errs.Add("settle.timeout", "timeout must be >= interval")
		}
	default:
		errs.Add("settle.strategy", fmt.Sprintf("strategy must be 'fixed' or 'poll', got %q", s.Strategy))
	}
}
