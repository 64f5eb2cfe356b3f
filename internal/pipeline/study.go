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

package pipeline

import (
	"context"
	"math/rand"
	"unicode/utf8"

	"text2diag/internal/explain/attribution"
	"text2diag/internal/explain/faithfulness"
	"text2diag/internal/explain/spans"
	"text2diag/internal/model"
)

// MinStudyTextLen 对照研究忽略过短文本
const MinStudyTextLen = 10

// StudyRow 单个 (样本, label) 的对照结果
type StudyRow struct {
	ExampleID string `json:"example_id"`
	faithfulness.ControlResult
}

// Study 忠实度对照研究：证据片段 vs 随机片段 vs 随机 label，顺序执行以保证随机序列可复现
type Study struct {
	predictor *Predictor
	controls  *faithfulness.Controls
}

// NewStudy 创建对照研究；seed 决定随机片段与随机 label
func NewStudy(p *Predictor, seed int64) *Study {
	return &Study{
		predictor: p,
		controls:  faithfulness.NewControls(p.verifier, rand.New(rand.NewSource(seed)), p.opts.Temperature),
	}
}

// Run 对每个样本概率最高的 TopLabels 个 label 做 A/B/C 对照；单条失败只记日志
func (s *Study) Run(ctx context.Context, examples []Example) ([]StudyRow, faithfulness.Summary, error) {
	p := s.predictor
	var rows []StudyRow
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return nil, faithfulness.Summary{}, err
		}
		text := ex.Text
		if p.opts.Sanitize {
			text = p.sanitizer.Sanitize(ex.Text).Text
		}
		if utf8.RuneCountInString(text) < MinStudyTextLen {
			continue
		}
		logits, err := p.forward(ctx, text)
		if err != nil {
			p.logger.Warn("control study forward failed", "example_id", ex.ID, "error", err)
			continue
		}
		probs := model.Calibrate(logits, p.opts.Temperature)
		for _, idx := range topIndices(probs, p.opts.TopLabels) {
			attrs, err := attribution.Compute(ctx, p.model, p.tok, text, idx, attribution.Options{Method: p.opts.Method, Steps: p.opts.IGSteps})
			if err != nil {
				p.logger.Warn("control study attribution failed", "example_id", ex.ID, "label", idx, "error", err)
				continue
			}
			selected := spans.Select(attrs, text, spans.Options{TopK: p.opts.TopKTokens, MaxSpans: p.opts.MaxSpans})
			if len(selected) == 0 {
				continue
			}
			res, err := s.controls.Run(ctx, text, idx, selected)
			if err != nil {
				p.logger.Warn("control study occlusion failed", "example_id", ex.ID, "label", idx, "error", err)
				continue
			}
			rows = append(rows, StudyRow{ExampleID: ex.ID, ControlResult: res})
		}
	}
	results := make([]faithfulness.ControlResult, len(rows))
	for i, r := range rows {
		results[i] = r.ControlResult
	}
	return rows, faithfulness.Summarize(results, p.verifier.MinDelta()), nil
}
