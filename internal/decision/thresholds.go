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

// Package decision 阈值决策与弃权策略
package decision

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"text2diag/pkg/errors"
)

// DefaultThreshold 无 per-label / global 时使用
const DefaultThreshold = 0.5

// Provenance 阈值来源
type Provenance string

const (
	ProvenancePerLabel Provenance = "per_label"
	ProvenanceGlobal   Provenance = "global"
	ProvenanceDefault  Provenance = "default"
)

// globalKey 阈值文件中表示全局阈值的键
const globalKey = "global"

// ThresholdSource 阈值来源；按 per_label → global → default 顺序解析
type ThresholdSource struct {
	PerLabel map[string]float64
	Global   *float64
	// Default 为 nil 时使用 DefaultThreshold；显式 0 有效
	Default  *float64
}

// NewThresholdSource 由扁平映射构建；"global" 键写入 Global
func NewThresholdSource(m map[string]float64) ThresholdSource {
	ts := ThresholdSource{PerLabel: make(map[string]float64, len(m))}
	for k, v := range m {
		if k == globalKey {
			g := v
			ts.Global = &g
			continue
		}
		ts.PerLabel[k] = v
	}
	return ts
}

// LoadThresholds 读取 JSON 或 YAML 阈值文件（JSON 是 YAML 的子集，统一用 yaml 解析）
func LoadThresholds(path string) (ThresholdSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ThresholdSource{}, errors.Wrapf(errors.ErrResourceUnavailable, "read thresholds %s: %v", path, err)
	}
	var m map[string]float64
	if err := yaml.Unmarshal(data, &m); err != nil {
		return ThresholdSource{}, errors.Wrapf(errors.ErrResourceUnavailable, "parse thresholds %s: %v", path, err)
	}
	ts := NewThresholdSource(m)
	if err := ts.Validate(); err != nil {
		return ThresholdSource{}, errors.Wrap(errors.ErrResourceUnavailable, err.Error())
	}
	return ts, nil
}

// Merge 以 other 覆盖当前来源（other 的 per-label、global 与 default 优先）
func (ts ThresholdSource) Merge(other ThresholdSource) ThresholdSource {
	out := ThresholdSource{PerLabel: make(map[string]float64, len(ts.PerLabel)+len(other.PerLabel)), Default: ts.Default}
	for k, v := range ts.PerLabel {
		out.PerLabel[k] = v
	}
	for k, v := range other.PerLabel {
		out.PerLabel[k] = v
	}
	out.Global = ts.Global
	if other.Global != nil {
		out.Global = other.Global
	}
	if other.Default != nil {
		out.Default = other.Default
	}
	return out
}

// Validate 阈值必须位于 [0, 1]
func (ts ThresholdSource) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("threshold %s=%v out of [0,1]", name, v)
		}
		return nil
	}
	for k, v := range ts.PerLabel {
		if err := check(k, v); err != nil {
			return err
		}
	}
	if ts.Global != nil {
		if err := check(globalKey, *ts.Global); err != nil {
			return err
		}
	}
	return check("default", ts.defaultValue())
}

// Resolve 返回 label 的阈值与来源
func (ts ThresholdSource) Resolve(label string) (float64, Provenance) {
	if t, ok := ts.PerLabel[label]; ok {
		return t, ProvenancePerLabel
	}
	if ts.Global != nil {
		return *ts.Global, ProvenanceGlobal
	}
	return ts.defaultValue(), ProvenanceDefault
}

func (ts ThresholdSource) defaultValue() float64 {
	if ts.Default == nil {
		return DefaultThreshold
	}
	return *ts.Default
}

// Decide prob ≥ t 时为 1
func Decide(prob, threshold float64) int {
	if prob >= threshold {
		return 1
	}
	return 0
}
