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

// Package contract 输出契约 v1：类型定义、校验、修复与定稿
package contract

import (
	"text2diag/pkg/evidence"
)

// Version 契约版本
const Version = "v1"

// MaxSnippetLen 证据片段文本上限（字符）
const MaxSnippetLen = 200

// Output 单个样本的决策记录
type Output struct {
	Version               string                     `json:"version"`
	ExampleID             string                     `json:"example_id"`
	ModelInfo             ModelInfo                  `json:"model_info"`
	Calibration           Calibration                `json:"calibration"`
	Labels                []Label                    `json:"labels"`
	Abstain               Abstain                    `json:"abstain"`
	Meta                  Meta                       `json:"meta"`
	DependencyGraph       *evidence.DependencyGraph  `json:"dependency_graph,omitempty"`
	DependencyGraphActive *evidence.DependencyGraph  `json:"dependency_graph_active,omitempty"`
	DependencyGraphTopK   *evidence.DependencyGraph  `json:"dependency_graph_topk,omitempty"`
	ExplanationGraph      *evidence.ExplanationGraph `json:"explanation_graph,omitempty"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	ModelName  string `json:"model_name"`
	Checkpoint string `json:"checkpoint"`
	MaxLen     int    `json:"max_len"`
	WindowSize int    `json:"window_size"`
}

// Calibration 标定信息
type Calibration struct {
	Method      string  `json:"method"`
	Temperature float64 `json:"temperature"`
	Timestamp   string  `json:"timestamp"`
}

// Label 单个 label 的决策与证据
type Label struct {
	Name            string         `json:"name"`
	ProbCalibrated  float64        `json:"prob_calibrated"`
	Decision        int            `json:"decision"`
	ThresholdUsed   float64        `json:"threshold_used"`
	ThresholdSource string         `json:"threshold_source"`
	EvidenceSpans   []EvidenceSpan `json:"evidence_spans"`
	Faithfulness    Faithfulness   `json:"faithfulness"`
	EvidenceMeta    EvidenceMeta   `json:"evidence_meta"`
}

// EvidenceSpan 证据片段
type EvidenceSpan struct {
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// Faithfulness 遮挡验证结果；未验证时只有 delta/is_faithful/status
type Faithfulness struct {
	Delta      float64  `json:"delta"`
	IsFaithful bool     `json:"is_faithful"`
	Status     string   `json:"faithfulness_status,omitempty"`
	PFull      *float64 `json:"p_full,omitempty"`
	PMasked    *float64 `json:"p_masked,omitempty"`
	Flag       string   `json:"flag,omitempty"`
}

// EvidenceMeta 证据抽取元信息
type EvidenceMeta struct {
	Method        string   `json:"method"`
	IGSteps       int      `json:"ig_steps,omitempty"`
	SkippedReason string   `json:"skipped_reason,omitempty"`
	MinProb       *float64 `json:"min_prob,omitempty"`
}

// Abstain 弃权状态
type Abstain struct {
	IsAbstain bool     `json:"is_abstain"`
	Reasons   []string `json:"reasons"`
}

// Meta 运行元信息
type Meta struct {
	CreatedAt     string        `json:"created_at"`
	RunID         string        `json:"run_id,omitempty"`
	Preprocessing Preprocessing `json:"preprocessing"`
}

// Preprocessing 预处理信息
type Preprocessing struct {
	Sanitized         bool              `json:"sanitized"`
	RulesApplied      []string          `json:"rules_applied"`
	SanitizationAudit SanitizationAudit `json:"sanitization_audit"`
}

// SanitizationAudit 清洗审计
type SanitizationAudit struct {
	Version string `json:"version"`
	SHA256  string `json:"sha256"`
}

// Probs 按 label 顺序返回概率
func (o Output) Probs() []float64 {
	out := make([]float64, len(o.Labels))
	for i, l := range o.Labels {
		out[i] = l.ProbCalibrated
	}
	return out
}

// Clone 深拷贝；定稿后的记录只以副本形式交给调用方
func (o Output) Clone() Output {
	c := o
	if o.Labels != nil {
		c.Labels = make([]Label, len(o.Labels))
		for i, l := range o.Labels {
			c.Labels[i] = l.clone()
		}
	}
	c.Abstain.Reasons = cloneStrings(o.Abstain.Reasons)
	c.Meta.Preprocessing.RulesApplied = cloneStrings(o.Meta.Preprocessing.RulesApplied)
	c.DependencyGraph = o.DependencyGraph.Clone()
	c.DependencyGraphActive = o.DependencyGraphActive.Clone()
	c.DependencyGraphTopK = o.DependencyGraphTopK.Clone()
	c.ExplanationGraph = o.ExplanationGraph.Clone()
	return c
}

func (l Label) clone() Label {
	c := l
	if l.EvidenceSpans != nil {
		c.EvidenceSpans = make([]EvidenceSpan, len(l.EvidenceSpans))
		copy(c.EvidenceSpans, l.EvidenceSpans)
	}
	c.Faithfulness.PFull = cloneFloat(l.Faithfulness.PFull)
	c.Faithfulness.PMasked = cloneFloat(l.Faithfulness.PMasked)
	c.EvidenceMeta.MinProb = cloneFloat(l.EvidenceMeta.MinProb)
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ExplanationInput 转为解释图构建输入
func (o Output) ExplanationInput() evidence.ExplanationInput {
	in := evidence.ExplanationInput{
		CalibrationMethod: o.Calibration.Method,
		Temperature:       o.Calibration.Temperature,
		Labels:            make([]evidence.LabelEvidence, 0, len(o.Labels)),
	}
	for _, l := range o.Labels {
		le := evidence.LabelEvidence{
			Name:            l.Name,
			Prob:            l.ProbCalibrated,
			Decision:        l.Decision,
			Threshold:       l.ThresholdUsed,
			ThresholdSource: l.ThresholdSource,
			FaithStatus:     l.Faithfulness.Status,
			FaithDelta:      l.Faithfulness.Delta,
		}
		for _, s := range l.EvidenceSpans {
			le.Spans = append(le.Spans, evidence.SpanEvidence{Start: s.Start, End: s.End, Score: s.Score, Snippet: s.Snippet})
		}
		in.Labels = append(in.Labels, le)
	}
	return in
}
