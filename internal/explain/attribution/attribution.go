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

// Package attribution 基于梯度的 token 归因：Gradient×Input 与 Integrated Gradients
package attribution

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"text2diag/internal/model"
	"text2diag/pkg/errors"
)

// Method 归因方法
type Method string

const (
	MethodGradXInput          Method = "grad_x_input"
	MethodIntegratedGradients Method = "integrated_gradients"
)

// DefaultSteps Integrated Gradients 默认插值步数
const DefaultSteps = 16

const stage = "attribution"

// TokenAttribution 单个 token 对目标 label 的贡献；Start/End 为原文字节偏移
type TokenAttribution struct {
	Token string
	Start int
	End   int
	Score float64
	Index int
}

// Options 归因选项
type Options struct {
	Method Method
	Steps  int // 仅 integrated_gradients 使用，0 表示 DefaultSteps
}

// Compute 按方法分派；模型不可求导时返回 ComputationError
func Compute(ctx context.Context, c model.Classifier, tok model.Tokenizer, text string, label int, opts Options) ([]TokenAttribution, error) {
	d, ok := c.(model.Differentiable)
	if !ok || d.EmbeddingLayer() == nil {
		return nil, errors.NewComputationError(stage, labelName(c, label), fmt.Errorf("classifier exposes no embedding layer"))
	}
	switch opts.Method {
	case "", MethodGradXInput:
		return GradientXInput(ctx, d, tok, text, label)
	case MethodIntegratedGradients:
		steps := opts.Steps
		if steps == 0 {
			steps = DefaultSteps
		}
		return IntegratedGradients(ctx, d, tok, text, label, steps)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidArg, "unknown attribution method %q", opts.Method)
	}
}

// GradientXInput score_t = Σ_d e[t][d]·∂logit/∂e[t][d]，一次前向+反向
func GradientXInput(ctx context.Context, m model.Differentiable, tok model.Tokenizer, text string, label int) ([]TokenAttribution, error) {
	if err := checkLabel(m, label); err != nil {
		return nil, err
	}
	enc := tok.Encode(text)
	x := m.EmbeddingLayer().Embed(enc.IDs)

	grads, err := gradients(ctx, m, [][][]float64{x}, enc.Mask, label)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(x))
	for t := range x {
		scores[t] = floats.Dot(x[t], grads[0][t])
	}
	return collect(enc, scores), nil
}

// IntegratedGradients 以 [PAD] 嵌入为基线，在 linspace(0,1,steps) 上一次批量前向，平均梯度后乘以 (x−baseline)
func IntegratedGradients(ctx context.Context, m model.Differentiable, tok model.Tokenizer, text string, label, steps int) ([]TokenAttribution, error) {
	if steps < 2 {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "integrated gradients needs steps >= 2, got %d", steps)
	}
	if err := checkLabel(m, label); err != nil {
		return nil, err
	}
	enc := tok.Encode(text)
	emb := m.EmbeddingLayer()
	x := emb.Embed(enc.IDs)
	padIDs := make([]int, len(enc.IDs))
	for i := range padIDs {
		padIDs[i] = tok.PadID()
	}
	baseline := emb.Embed(padIDs)

	diff := make([][]float64, len(x))
	for t := range x {
		diff[t] = make([]float64, len(x[t]))
		floats.SubTo(diff[t], x[t], baseline[t])
	}

	batch := make([][][]float64, steps)
	for s := 0; s < steps; s++ {
		alpha := float64(s) / float64(steps-1)
		seq := make([][]float64, len(x))
		for t := range x {
			row := make([]float64, len(x[t]))
			floats.AddScaledTo(row, baseline[t], alpha, diff[t])
			seq[t] = row
		}
		batch[s] = seq
	}

	grads, err := gradients(ctx, m, batch, enc.Mask, label)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(x))
	avg := make([]float64, emb.Dim())
	for t := range x {
		for i := range avg {
			avg[i] = 0
		}
		for s := range grads {
			floats.Add(avg, grads[s][t])
		}
		floats.Scale(1/float64(steps), avg)
		scores[t] = floats.Dot(diff[t], avg)
	}
	return collect(enc, scores), nil
}

// gradients 调用模型并校验梯度形状
func gradients(ctx context.Context, m model.Differentiable, batch [][][]float64, mask []int, label int) ([][][]float64, error) {
	_, grads, err := m.Gradients(ctx, batch, mask, label)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewComputationError(stage, labelName(m, label), err)
	}
	if len(grads) != len(batch) {
		return nil, errors.NewComputationError(stage, labelName(m, label),
			fmt.Errorf("gradient batch size %d != %d", len(grads), len(batch)))
	}
	for b := range batch {
		if len(grads[b]) != len(batch[b]) {
			return nil, errors.NewComputationError(stage, labelName(m, label),
				fmt.Errorf("gradient sequence length %d != %d", len(grads[b]), len(batch[b])))
		}
		for t := range batch[b] {
			if len(grads[b][t]) != len(batch[b][t]) {
				return nil, errors.NewComputationError(stage, labelName(m, label),
					fmt.Errorf("gradient dim %d != %d at token %d", len(grads[b][t]), len(batch[b][t]), t))
			}
		}
	}
	return grads, nil
}

func collect(enc model.Encoding, scores []float64) []TokenAttribution {
	out := make([]TokenAttribution, len(scores))
	for i, s := range scores {
		out[i] = TokenAttribution{
			Token: enc.Tokens[i],
			Start: enc.Offsets[i][0],
			End:   enc.Offsets[i][1],
			Score: s,
			Index: i,
		}
	}
	return out
}

func checkLabel(c model.Classifier, label int) error {
	if label < 0 || label >= len(c.Labels()) {
		return errors.Wrapf(errors.ErrInvalidArg, "label index %d out of range", label)
	}
	return nil
}

func labelName(c model.Classifier, label int) string {
	labels := c.Labels()
	if label >= 0 && label < len(labels) {
		return labels[label]
	}
	return fmt.Sprintf("#%d", label)
}
