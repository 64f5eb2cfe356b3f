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

// Package faithfulness 通过遮挡证据片段验证其因果贡献
package faithfulness

import (
	"context"
	"fmt"
	"unicode/utf8"

	"text2diag/internal/explain/spans"
	"text2diag/internal/model"
	"text2diag/pkg/errors"
	"text2diag/pkg/utils"
)

// DefaultMinDelta 判定 faithful 的最小概率下降
const DefaultMinDelta = 0.03

// Status 验证状态
type Status string

const (
	StatusPassed                  Status = "passed"
	StatusFailedLowDelta          Status = "failed_low_delta"
	StatusSuspiciousNegativeDelta Status = "suspicious_negative_delta"

	// 以下由编排层写入，表示未执行验证
	StatusSkippedLowProb          Status = "skipped_low_prob"
	StatusSkippedNoSpans          Status = "skipped_no_spans"
	StatusSkippedComputationError Status = "skipped_computation_error"
	StatusNotRequested            Status = "not_requested"
)

// FlagNegativeDelta 遮挡后概率反而上升
const FlagNegativeDelta = "negative_delta_suspicious"

const stage = "faithfulness"

// Result 遮挡验证结果；概率与 delta 保留 4 位小数
type Result struct {
	PFull      float64 `json:"p_full"`
	PMasked    float64 `json:"p_masked"`
	Delta      float64 `json:"delta"`
	Status     Status  `json:"faithfulness_status"`
	IsFaithful bool    `json:"is_faithful"`
	Flag       string  `json:"flag,omitempty"`
}

// Classify delta → (status, faithful, flag)；负 delta 一律不 faithful
func Classify(delta, minDelta float64) (Status, bool, string) {
	switch {
	case delta < 0:
		return StatusSuspiciousNegativeDelta, false, FlagNegativeDelta
	case delta >= minDelta:
		return StatusPassed, true, ""
	default:
		return StatusFailedLowDelta, false, ""
	}
}

// Verifier 遮挡验证器，冻结模型上的纯函数
type Verifier struct {
	model    model.Classifier
	tok      model.Tokenizer
	minDelta float64
}

// NewVerifier 创建验证器；minDelta < 0 时使用默认值
func NewVerifier(c model.Classifier, tok model.Tokenizer, minDelta float64) *Verifier {
	if minDelta < 0 {
		minDelta = DefaultMinDelta
	}
	return &Verifier{model: c, tok: tok, minDelta: minDelta}
}

// MinDelta 当前阈值
func (v *Verifier) MinDelta() float64 { return v.minDelta }

// Verify p_full − p_masked，其中 p = σ(logit/T)，masked 为所有片段并集置空后的文本
func (v *Verifier) Verify(ctx context.Context, text string, ss []spans.Span, label int, temperature float64) (Result, error) {
	pFull, err := v.Prob(ctx, text, label, temperature)
	if err != nil {
		return Result{}, err
	}
	return v.verifyFrom(ctx, pFull, text, ss, label, temperature)
}

// Prob 单条文本上 label 的标定概率
func (v *Verifier) Prob(ctx context.Context, text string, label int, temperature float64) (float64, error) {
	if temperature <= 0 {
		return 0, errors.Wrapf(errors.ErrInvalidArg, "temperature must be > 0, got %v", temperature)
	}
	labels := v.model.Labels()
	if label < 0 || label >= len(labels) {
		return 0, errors.Wrapf(errors.ErrInvalidArg, "label index %d out of range", label)
	}
	logits, err := v.model.Forward(ctx, v.tok.Encode(text))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, errors.NewComputationError(stage, labels[label], err)
	}
	if len(logits) != len(labels) {
		return 0, errors.NewComputationError(stage, labels[label],
			fmt.Errorf("forward returned %d logits for %d labels", len(logits), len(labels)))
	}
	return model.Sigmoid(logits[label] / temperature), nil
}

func (v *Verifier) verifyFrom(ctx context.Context, pFull float64, text string, ss []spans.Span, label int, temperature float64) (Result, error) {
	pMasked, err := v.Prob(ctx, MaskText(text, ss), label, temperature)
	if err != nil {
		return Result{}, err
	}
	delta := pFull - pMasked
	status, ok, flag := Classify(delta, v.minDelta)
	return Result{
		PFull:      utils.Round4(pFull),
		PMasked:    utils.Round4(pMasked),
		Delta:      utils.Round4(delta),
		Status:     status,
		IsFaithful: ok,
		Flag:       flag,
	}, nil
}

// SpanDeltas 逐个片段单独遮挡时的概率下降（未取整）
func (v *Verifier) SpanDeltas(ctx context.Context, text string, ss []spans.Span, label int, temperature float64) ([]float64, error) {
	pFull, err := v.Prob(ctx, text, label, temperature)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(ss))
	for i, s := range ss {
		p, err := v.Prob(ctx, MaskText(text, []spans.Span{s}), label, temperature)
		if err != nil {
			return nil, err
		}
		out[i] = pFull - p
	}
	return out, nil
}

// MaskText 将片段并集内的字节替换为空格；长度与其余偏移不变，边界向外扩展到完整字符
func MaskText(text string, ss []spans.Span) string {
	if len(ss) == 0 {
		return text
	}
	b := []byte(text)
	n := len(b)
	for _, s := range ss {
		start, end := s.Start, s.End
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		for start > 0 && !utf8.RuneStart(b[start]) {
			start--
		}
		for end < n && !utf8.RuneStart(b[end]) {
			end++
		}
		for i := start; i < end; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}
