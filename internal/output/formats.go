package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/zkbench/internal/bench"
)

// Format is a machine-readable result format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from a file extension; JSON unless the
// file ends in .yaml or .yml.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// report is the serialised form of a result. Durations are written as
// strings so the files stay readable.
type report struct {
	RunID      string  `json:"runId" yaml:"runId"`
	Root       string  `json:"root" yaml:"root"`
	Mode       string  `json:"mode" yaml:"mode"`
	Sessions   string  `json:"sessions" yaml:"sessions"`
	Workers    int     `json:"workers" yaml:"workers"`
	Batch      int     `json:"batch" yaml:"batch"`
	StartTime  string  `json:"startTime" yaml:"startTime"`
	EndTime    string  `json:"endTime" yaml:"endTime"`
	Duration   string  `json:"duration" yaml:"duration"`
	Count      int     `json:"count" yaml:"count"`
	Throughput float64 `json:"throughput" yaml:"throughput"`
	Creates    int64   `json:"creates" yaml:"creates"`
	FirstSeq   uint64  `json:"firstSeq,omitempty" yaml:"firstSeq,omitempty"`
	LastSeq    uint64  `json:"lastSeq,omitempty" yaml:"lastSeq,omitempty"`
	Gaps       uint64  `json:"gaps,omitempty" yaml:"gaps,omitempty"`
}

func newReport(res *bench.Result) report {
	return report{
		RunID:      res.RunID,
		Root:       res.Root,
		Mode:       res.Mode,
		Sessions:   string(res.Sessions),
		Workers:    res.Workers,
		Batch:      res.Batch,
		StartTime:  res.StartTime.Format("2006-01-02T15:04:05.000Z07:00"),
		EndTime:    res.EndTime.Format("2006-01-02T15:04:05.000Z07:00"),
		Duration:   res.Duration.String(),
		Count:      res.Count,
		Throughput: res.Throughput,
		Creates:    res.Creates,
		FirstSeq:   res.FirstSeq,
		LastSeq:    res.LastSeq,
		Gaps:       res.Gaps,
	}
}

// WriteResult serialises res to w.
func WriteResult(w io.Writer, res *bench.Result, format Format) error {
	if res == nil {
		return fmt.Errorf("no results to write")
	}

	r := newReport(res)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown result format %q", format)
	}
}

// WriteResultFile writes res to path, creating parent directories.
func WriteResultFile(path string, res *bench.Result) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	if err := WriteResult(f, res, FormatForPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
