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

package app

import (
	"os"

	"gopkg.in/yaml.v3"

	"text2diag/internal/decision"
	"text2diag/internal/model"
	"text2diag/internal/model/mlp"
	"text2diag/internal/model/modeltest"
	"text2diag/pkg/config"
	"text2diag/pkg/errors"
	"text2diag/pkg/evidence"
	"text2diag/pkg/sanitize"
)

// LoadedModel 加载完成的分类器与分词器
type LoadedModel struct {
	Name       string
	Classifier model.Classifier
	Tokenizer  model.Tokenizer
	Demo       bool // 未配置权重，使用内置参考模型
}

// LoadModel 读取 checkpoint 权重；checkpoint 为空时使用内置参考模型
func LoadModel(cfg config.ModelConfig) (LoadedModel, error) {
	var (
		m    *mlp.Model
		demo bool
		err  error
	)
	if cfg.Checkpoint == "" {
		m, _ = modeltest.New()
		demo = true
	} else {
		m, err = mlp.LoadFile(cfg.Checkpoint)
		if err != nil {
			return LoadedModel{}, err
		}
	}
	tok, err := m.Tokenizer(cfg.MaxLen)
	if err != nil {
		return LoadedModel{}, err
	}
	name := cfg.Name
	if name == "" || demo {
		name = m.Name()
	}
	return LoadedModel{Name: name, Classifier: m, Tokenizer: tok, Demo: demo}, nil
}

// ResolveTemperature temperature_file 存在时覆盖配置中的温度
//
// 文件格式 {"temperature": 1.3}，JSON 与 YAML 均可。
func ResolveTemperature(cfg config.CalibrationConfig) (float64, error) {
	if cfg.TemperatureFile == "" {
		return cfg.Temperature, nil
	}
	data, err := os.ReadFile(cfg.TemperatureFile)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrResourceUnavailable, "read temperature %s: %v", cfg.TemperatureFile, err)
	}
	var f struct {
		Temperature float64 `yaml:"temperature"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, errors.Wrapf(errors.ErrResourceUnavailable, "parse temperature %s: %v", cfg.TemperatureFile, err)
	}
	if f.Temperature <= 0 {
		return 0, errors.Wrapf(errors.ErrResourceUnavailable, "temperature in %s must be > 0, got %v", cfg.TemperatureFile, f.Temperature)
	}
	return f.Temperature, nil
}

// ResolveThresholds 配置中的 global/per_label 与阈值文件合并，文件优先
func ResolveThresholds(cfg config.ThresholdsConfig) (decision.ThresholdSource, error) {
	m := make(map[string]float64, len(cfg.PerLabel)+1)
	for k, v := range cfg.PerLabel {
		m[k] = v
	}
	m["global"] = cfg.Global
	ts := decision.NewThresholdSource(m)
	if cfg.File != "" {
		fromFile, err := decision.LoadThresholds(cfg.File)
		if err != nil {
			return decision.ThresholdSource{}, err
		}
		ts = ts.Merge(fromFile)
	}
	if err := ts.Validate(); err != nil {
		return decision.ThresholdSource{}, errors.Wrap(errors.ErrInvalidArg, err.Error())
	}
	return ts, nil
}

// ResolvePriors priors_file 为空时使用内置先验表
func ResolvePriors(cfg config.GraphConfig) (evidence.Priors, error) {
	if cfg.PriorsFile == "" {
		return evidence.DefaultPriors(), nil
	}
	p, err := evidence.LoadPriors(cfg.PriorsFile)
	if err != nil {
		return evidence.Priors{}, errors.Wrap(err, "load graph priors")
	}
	return p, nil
}

// SanitizePolicy 配置 → 清洗策略
func SanitizePolicy(cfg config.SanitizationConfig) sanitize.Policy {
	return sanitize.Policy{
		StripURLs:       cfg.StripURLs,
		StripRedditRefs: cfg.StripRedditRefs,
		StripUserRefs:   cfg.StripUserRefs,
		MaskConditions:  cfg.MaskConditions,
	}
}
