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

package faithfulness

import (
	"context"
	"math/rand"

	"text2diag/internal/explain/spans"
)

// RandomSpans 生成与 ref 数量、长度相同的随机片段；片段长于文本时覆盖全文
func RandomSpans(rng *rand.Rand, textLen int, ref []spans.Span) []spans.Span {
	if len(ref) == 0 {
		return nil
	}
	out := make([]spans.Span, 0, len(ref))
	for _, r := range ref {
		n := r.End - r.Start
		if n < 0 {
			n = 0
		}
		start := 0
		if textLen > n {
			start = rng.Intn(textLen - n + 1)
		}
		end := start + n
		if end > textLen {
			end = textLen
		}
		out = append(out, spans.Span{Start: start, End: end, Snippet: "[RANDOM]"})
	}
	return out
}

// ControlResult 单个 (样本, label) 的三组对照
//
//	A: 证据片段 / 目标 label
//	B: 同数量同长度的随机片段 / 目标 label
//	C: 证据片段 / 随机的另一个 label（单 label 模型时 delta 为 0）
type ControlResult struct {
	Label         string    `json:"label"`
	ShuffledLabel string    `json:"shuffled_label"`
	A             Result    `json:"A_evidence"`
	B             Result    `json:"B_random"`
	C             Result    `json:"C_shuffle"`
	SpanDeltas    []float64 `json:"span_deltas"`
	SpanCount     int       `json:"spans_count"`
}

// Controls 对照实验；rng 仅在顺序执行的对照研究内使用，不可并发调用 Run
type Controls struct {
	verifier    *Verifier
	rng         *rand.Rand
	temperature float64
}

// NewControls 创建对照实验
func NewControls(v *Verifier, rng *rand.Rand, temperature float64) *Controls {
	return &Controls{verifier: v, rng: rng, temperature: temperature}
}

// Run 执行 A/B/C 三组遮挡以及逐片段遮挡
func (c *Controls) Run(ctx context.Context, text string, label int, ss []spans.Span) (ControlResult, error) {
	labels := c.verifier.model.Labels()
	res := ControlResult{SpanCount: len(ss)}
	if label >= 0 && label < len(labels) {
		res.Label = labels[label]
	}

	pFull, err := c.verifier.Prob(ctx, text, label, c.temperature)
	if err != nil {
		return res, err
	}
	if res.A, err = c.verifier.verifyFrom(ctx, pFull, text, ss, label, c.temperature); err != nil {
		return res, err
	}
	random := RandomSpans(c.rng, len(text), ss)
	if res.B, err = c.verifier.verifyFrom(ctx, pFull, text, random, label, c.temperature); err != nil {
		return res, err
	}

	others := make([]int, 0, len(labels))
	for i := range labels {
		if i != label {
			others = append(others, i)
		}
	}
	if len(others) > 0 {
		shuffled := others[c.rng.Intn(len(others))]
		res.ShuffledLabel = labels[shuffled]
		if res.C, err = c.verifier.Verify(ctx, text, ss, shuffled, c.temperature); err != nil {
			return res, err
		}
	} else {
		res.ShuffledLabel = "N/A"
		status, ok, flag := Classify(0, c.verifier.minDelta)
		res.C = Result{Status: status, IsFaithful: ok, Flag: flag}
	}

	if res.SpanDeltas, err = c.verifier.SpanDeltas(ctx, text, ss, label, c.temperature); err != nil {
		return res, err
	}
	return res, nil
}

// Summary 对照实验汇总
type Summary struct {
	N             int     `json:"n"`
	AMean         float64 `json:"A_mean"`
	BMean         float64 `json:"B_mean"`
	CMean         float64 `json:"C_mean"`
	DiffABMean    float64 `json:"diff_AB_mean"`
	DiffACMean    float64 `json:"diff_AC_mean"`
	APassRate     float64 `json:"A_pass_rate"`
	BPassRate     float64 `json:"B_pass_rate"`
	DominanceRate float64 `json:"dominance_rate"` // A.delta > B.delta 的比例
}

// Summarize 汇总均值、配对差与通过率
func Summarize(results []ControlResult, minDelta float64) Summary {
	s := Summary{N: len(results)}
	if len(results) == 0 {
		return s
	}
	var aPass, bPass, dominant int
	for _, r := range results {
		s.AMean += r.A.Delta
		s.BMean += r.B.Delta
		s.CMean += r.C.Delta
		if r.A.Delta >= minDelta {
			aPass++
		}
		if r.B.Delta >= minDelta {
			bPass++
		}
		if r.A.Delta > r.B.Delta {
			dominant++
		}
	}
	n := float64(len(results))
	s.AMean /= n
	s.BMean /= n
	s.CMean /= n
	s.DiffABMean = s.AMean - s.BMean
	s.DiffACMean = s.AMean - s.CMean
	s.APassRate = float64(aPass) / n
	s.BPassRate = float64(bPass) / n
	s.DominanceRate = float64(dominant) / n
	return s
}
