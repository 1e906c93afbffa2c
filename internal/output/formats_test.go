package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected Format
	}{
		{"result.json", FormatJSON},
		{"result.yaml", FormatYAML},
		{"out/result.YML", FormatYAML},
		{"result", FormatJSON},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.expected {
			t.Errorf("FormatForPath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestWriteResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), FormatJSON); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}

	doc := buf.String()
	if !gjson.Valid(doc) {
		t.Fatalf("WriteResult() produced invalid JSON:\n%s", doc)
	}

	checks := map[string]string{
		"runId":     "0b6f3c1e-run",
		"mode":      "ephemeral-sequential",
		"sessions":  "shared",
		"duration":  "10s",
		"count":     "12345",
		"creates":   "12345",
		"lastSeq":   "12344",
		"startTime": "2024-05-01T12:00:00.000Z",
	}
	for path, want := range checks {
		if got := gjson.Get(doc, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	if got := gjson.Get(doc, "throughput").Float(); got != 1234.5 {
		t.Errorf("throughput = %v, want 1234.5", got)
	}
	if gjson.Get(doc, "firstSeq").Exists() {
		t.Error("firstSeq = 0 should be omitted")
	}
}

func TestWriteResult_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, nil, FormatJSON); err == nil {
		t.Error("Expected error for nil result")
	}
	if err := WriteResult(&buf, sampleResult(), Format("xml")); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestWriteResultFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "nested", "result.json")
	if err := WriteResultFile(jsonPath, sampleResult()); err != nil {
		t.Fatalf("WriteResultFile() error = %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := gjson.GetBytes(data, "count").Int(); got != 12345 {
		t.Errorf("count = %d, want 12345", got)
	}

	yamlPath := filepath.Join(dir, "result.yaml")
	if err := WriteResultFile(yamlPath, sampleResult()); err != nil {
		t.Fatalf("WriteResultFile() error = %v", err)
	}
	data, err = os.ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "runId: 0b6f3c1e-run") {
		t.Errorf("YAML output missing runId:\n%s", data)
	}

	var parsed map[string]interface{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if parsed["count"] != 12345 {
		t.Errorf("count = %v, want 12345", parsed["count"])
	}
}
