package config

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestConfigRoundTripYAML(t *testing.T) {
	original := DefaultConfig()
	original.LogLevel = warnLevel
	original.Output.Dir = "/captures"
	original.Output.CropFormat = "jpeg"
	original.Capture.Normalize = "NFD"
	original.Source.Mirror = true
	original.Journal.Enabled = true
	original.Server.Host = "0.0.0.0"

	data, err := yaml.Marshal(original)
	if err != nil {
		t.Fatalf("yaml.Marshal() error: %v", err)
	}

	var decoded Config
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}
	if decoded != original {
		t.Errorf("YAML round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestConfigYAMLKeys(t *testing.T) {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("yaml.Marshal() error: %v", err)
	}
	var raw map[string]map[string]any
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}
	raw = map[string]map[string]any{}
	for _, section := range []string{"output", "capture", "source", "journal", "server"} {
		m, ok := top[section].(map[string]any)
		if !ok {
			t.Fatalf("section %s missing from YAML", section)
		}
		raw[section] = m
	}
	for section, key := range map[string]string{
		"output":  "crop_format",
		"capture": "duplicate_color",
		"source":  "queue_size",
		"journal": "enabled",
		"server":  "max_upload_mb",
	} {
		if _, ok := raw[section][key]; !ok {
			t.Errorf("key %s.%s missing from YAML", section, key)
		}
	}
}

func TestConfigJSONUnmarshaling(t *testing.T) {
	input := `{"log_level":"debug","output":{"padding":2,"lock":false},"source":{"interval_ms":100}}`
	cfg := DefaultConfig()
	if err := json.Unmarshal([]byte(input), &cfg); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if cfg.LogLevel != debugLevel {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Output.Padding != 2 || cfg.Output.Lock {
		t.Errorf("Unexpected output section %+v", cfg.Output)
	}
	if cfg.Output.CropFormat != "png" {
		t.Errorf("Expected untouched crop format to remain png, got %s", cfg.Output.CropFormat)
	}
	if cfg.Source.IntervalMs != 100 {
		t.Errorf("Expected interval 100, got %d", cfg.Source.IntervalMs)
	}
}
