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

// Package pipeline 单样本编排（清洗 → 前向 → 决策 → 证据 → 图 → 契约 → 弃权）与批处理
package pipeline

import (
	"text2diag/internal/decision"
	"text2diag/internal/explain/attribution"
	"text2diag/internal/explain/faithfulness"
	"text2diag/internal/explain/spans"
	"text2diag/pkg/config"
	"text2diag/pkg/errors"
	"text2diag/pkg/evidence"
)

// DefaultEvidenceMinProb 低于该概率的 label 不做证据抽取
const DefaultEvidenceMinProb = 0.10

// DefaultEvidenceTopLabels 按概率取前 N 个 label 做证据抽取
const DefaultEvidenceTopLabels = 2

// Options 编排参数
type Options struct {
	ModelName  string
	Checkpoint string
	MaxLen     int
	WindowSize int

	CalibrationMethod    string
	Temperature          float64
	CalibrationTimestamp string // 为空时使用运行时间

	Sanitize bool

	Explain         bool
	Method          attribution.Method
	IGSteps         int
	TopKTokens      int
	MaxSpans        int
	TopLabels       int
	EvidenceMinProb float64
	MinDelta        float64

	Abstain decision.AbstainPolicy

	Graph            bool
	GraphActive      bool
	GraphTopK        int
	ExplanationGraph bool
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		ModelName:         "text2diag-mlp",
		MaxLen:            512,
		WindowSize:        3,
		CalibrationMethod: "temperature_scaling",
		Temperature:       1.0,
		Sanitize:          true,
		Explain:           true,
		Method:            attribution.MethodGradXInput,
		IGSteps:           attribution.DefaultSteps,
		TopKTokens:        spans.DefaultTopK,
		MaxSpans:          spans.DefaultMaxSpans,
		TopLabels:         DefaultEvidenceTopLabels,
		EvidenceMinProb:   DefaultEvidenceMinProb,
		MinDelta:          faithfulness.DefaultMinDelta,
		Abstain:           decision.DefaultAbstainPolicy(),
		GraphActive:       true,
		GraphTopK:         evidence.DefaultTopK,
	}
}

// OptionsFromConfig 由配置构建编排参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ModelName:            cfg.Model.Name,
		Checkpoint:           cfg.Model.Checkpoint,
		MaxLen:               cfg.Model.MaxLen,
		WindowSize:           cfg.Model.WindowSize,
		CalibrationMethod:    cfg.Calibration.Method,
		Temperature:          cfg.Calibration.Temperature,
		CalibrationTimestamp: cfg.Calibration.Timestamp,
		Sanitize:             cfg.Sanitization.Enabled,
		Explain:              cfg.Explain.Enabled,
		Method:               attribution.Method(cfg.Explain.Method),
		IGSteps:              cfg.Explain.IGSteps,
		TopKTokens:           cfg.Explain.TopKTokens,
		MaxSpans:             cfg.Explain.MaxSpans,
		TopLabels:            cfg.Explain.TopLabels,
		EvidenceMinProb:      cfg.Explain.MinProb,
		MinDelta:             cfg.Faithfulness.MinDelta,
		Abstain: decision.AbstainPolicy{
			MinTextLen:      cfg.Abstain.MinTextLen,
			ConfidenceFloor: cfg.Abstain.ConfidenceFloor,
		},
		Graph:            cfg.Graph.Enabled,
		GraphActive:      cfg.Graph.IncludeActive,
		GraphTopK:        cfg.Graph.TopK,
		ExplanationGraph: cfg.Graph.Explanation,
	}
}

// validate 参数检查
func (o Options) validate() error {
	if o.Temperature <= 0 {
		return errors.Wrapf(errors.ErrInvalidArg, "temperature must be > 0, got %v", o.Temperature)
	}
	switch o.Method {
	case attribution.MethodGradXInput, attribution.MethodIntegratedGradients:
	default:
		return errors.Wrapf(errors.ErrInvalidArg, "unknown attribution method %q", o.Method)
	}
	if o.Method == attribution.MethodIntegratedGradients && o.IGSteps < 2 {
		return errors.Wrapf(errors.ErrInvalidArg, "ig_steps must be >= 2, got %d", o.IGSteps)
	}
	if o.EvidenceMinProb < 0 || o.EvidenceMinProb > 1 {
		return errors.Wrapf(errors.ErrInvalidArg, "evidence min prob out of range: %v", o.EvidenceMinProb)
	}
	return nil
}
