// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
model:
  checkpoint: "weights.json"
  max_len: 128
thresholds:
  global: 0.45
  per_label:
    depression: 0.6
explain:
  method: integrated_gradients
  ig_steps: 32
log:
  level: "debug"
`
	path := filepath.Join(dir, "release.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model.MaxLen != 128 {
		t.Errorf("Model.MaxLen: got %d", cfg.Model.MaxLen)
	}
	if cfg.Thresholds.Global != 0.45 || cfg.Thresholds.PerLabel["depression"] != 0.6 {
		t.Errorf("Thresholds: got %+v", cfg.Thresholds)
	}
	if cfg.Explain.Method != "integrated_gradients" || cfg.Explain.IGSteps != 32 {
		t.Errorf("Explain: got %+v", cfg.Explain)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
	// 未写入的键使用默认值
	if cfg.Faithfulness.MinDelta != 0.03 || cfg.Abstain.ConfidenceFloor != 0.40 || cfg.Abstain.MinTextLen != 5 {
		t.Errorf("defaults not applied: %+v %+v", cfg.Faithfulness, cfg.Abstain)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Calibration.Temperature != 1.0 {
		t.Errorf("Calibration.Temperature: got %v", cfg.Calibration.Temperature)
	}
	if cfg.Explain.TopKTokens != 12 || cfg.Explain.MaxSpans != 3 || cfg.Explain.IGSteps != 16 {
		t.Errorf("Explain defaults: %+v", cfg.Explain)
	}
	if cfg.Graph.TopK != 3 || cfg.Batch.Concurrency != 1 || cfg.Cache.Type != "none" {
		t.Errorf("misc defaults: %+v %+v %+v", cfg.Graph, cfg.Batch, cfg.Cache)
	}
	if !cfg.Monitoring.Prometheus.Enable || cfg.Monitoring.Tracing.Enable {
		t.Errorf("monitoring defaults: %+v", cfg.Monitoring)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TEXT2DIAG_ABSTAIN_CONFIDENCE_FLOOR", "0.25")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Abstain.ConfidenceFloor != 0.25 {
		t.Errorf("env override not applied: %v", cfg.Abstain.ConfidenceFloor)
	}
}

func TestLoadConfig_ValidationFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("explain:\n  method: lime\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for unknown explain.method")
	}

	path2 := filepath.Join(dir, "bad_temp.yaml")
	if err := os.WriteFile(path2, []byte("calibration:\n  temperature: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path2); err == nil {
		t.Fatal("expected validation error for zero temperature")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCacheConfig_TTLDuration(t *testing.T) {
	if d := (CacheConfig{TTL: "90s"}).TTLDuration(); d != 90*time.Second {
		t.Errorf("TTLDuration = %v", d)
	}
	if d := (CacheConfig{TTL: "soon"}).TTLDuration(); d != 0 {
		t.Errorf("invalid TTL should be 0, got %v", d)
	}
}
