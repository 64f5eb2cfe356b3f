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

// Package mlp 参考分类器：嵌入求和池化 → tanh 隐层 → 每个 label 一个 logit，支持对输入嵌入解析求导
package mlp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"text2diag/internal/model"
	"text2diag/internal/model/wordtok"
	"text2diag/pkg/errors"
)

// Weights 权重文件格式；Vocab[i] 对应 Embeddings[i]
type Weights struct {
	Name       string      `json:"name"`
	Labels     []string    `json:"labels"`
	Vocab      []string    `json:"vocab"`
	Embeddings [][]float64 `json:"embeddings"` // [V][D]
	W1         [][]float64 `json:"w1"`         // [H][D]
	B1         []float64   `json:"b1"`         // [H]
	W2         [][]float64 `json:"w2"`         // [L][H]
	B2         []float64   `json:"b2"`         // [L]
	MaxLen     int         `json:"max_len"`
}

// Model 冻结权重的参考分类器，只读，可被多个 goroutine 共享
type Model struct {
	w   Weights
	emb *embeddingTable
}

var _ model.Differentiable = (*Model)(nil)

// New 校验形状并构建模型
func New(w Weights) (*Model, error) {
	if err := w.validate(); err != nil {
		return nil, errors.Wrap(errors.ErrResourceUnavailable, err.Error())
	}
	return &Model{w: w, emb: &embeddingTable{rows: w.Embeddings, dim: len(w.Embeddings[0])}}, nil
}

func (w Weights) validate() error {
	if len(w.Labels) == 0 {
		return fmt.Errorf("mlp: no labels")
	}
	if len(w.Embeddings) == 0 || len(w.Embeddings) != len(w.Vocab) {
		return fmt.Errorf("mlp: embeddings rows %d != vocab size %d", len(w.Embeddings), len(w.Vocab))
	}
	d := len(w.Embeddings[0])
	if d == 0 {
		return fmt.Errorf("mlp: embedding dim is 0")
	}
	for i, row := range w.Embeddings {
		if len(row) != d {
			return fmt.Errorf("mlp: embeddings[%d] has dim %d, want %d", i, len(row), d)
		}
	}
	h := len(w.W1)
	if h == 0 || len(w.B1) != h {
		return fmt.Errorf("mlp: hidden layer shape mismatch (w1=%d, b1=%d)", h, len(w.B1))
	}
	for i, row := range w.W1 {
		if len(row) != d {
			return fmt.Errorf("mlp: w1[%d] has %d cols, want %d", i, len(row), d)
		}
	}
	if len(w.W2) != len(w.Labels) || len(w.B2) != len(w.Labels) {
		return fmt.Errorf("mlp: output layer shape mismatch (w2=%d, b2=%d, labels=%d)", len(w.W2), len(w.B2), len(w.Labels))
	}
	for i, row := range w.W2 {
		if len(row) != h {
			return fmt.Errorf("mlp: w2[%d] has %d cols, want %d", i, len(row), h)
		}
	}
	return nil
}

// LoadFile 从 JSON 读取权重；失败统一归为 ErrResourceUnavailable
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrResourceUnavailable, "read weights %s: %v", path, err)
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrapf(errors.ErrResourceUnavailable, "parse weights %s: %v", path, err)
	}
	return New(w)
}

// SaveFile 将权重写为 JSON
func (m *Model) SaveFile(path string) error {
	data, err := json.MarshalIndent(m.w, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Name 模型名
func (m *Model) Name() string { return m.w.Name }

// Labels label 名称
func (m *Model) Labels() []string {
	out := make([]string, len(m.w.Labels))
	copy(out, m.w.Labels)
	return out
}

// Tokenizer 由权重中的词表构建匹配的分词器；maxLen<=0 时使用权重中的 max_len
func (m *Model) Tokenizer(maxLen int) (*wordtok.Tokenizer, error) {
	if maxLen <= 0 {
		maxLen = m.w.MaxLen
	}
	tok, err := wordtok.New(m.w.Vocab, maxLen)
	if err != nil {
		return nil, errors.Wrap(errors.ErrResourceUnavailable, err.Error())
	}
	if tok.VocabSize() != len(m.w.Vocab) {
		return nil, errors.Wrapf(errors.ErrResourceUnavailable, "mlp: vocab must start with %s %s %s %s",
			wordtok.PadToken, wordtok.UnkToken, wordtok.ClsToken, wordtok.SepToken)
	}
	return tok, nil
}

// Reentrant 权重只读，前向与反向的中间结果均为每次调用新分配
func (m *Model) Reentrant() bool { return true }

// EmbeddingLayer 输入嵌入层
func (m *Model) EmbeddingLayer() model.EmbeddingLayer { return m.emb }

// Forward 单条序列前向
func (m *Model) Forward(ctx context.Context, enc model.Encoding) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x := m.emb.Embed(enc.IDs)
	_, logits := m.forward(x, enc.Mask)
	return logits, nil
}

// Gradients 批量前向并对目标 label 的 logit 求输入嵌入梯度
func (m *Model) Gradients(ctx context.Context, batch [][][]float64, mask []int, label int) ([][]float64, [][][]float64, error) {
	if label < 0 || label >= len(m.w.Labels) {
		return nil, nil, errors.Wrapf(errors.ErrInvalidArg, "label index %d out of range", label)
	}
	logits := make([][]float64, len(batch))
	grads := make([][][]float64, len(batch))
	for b, x := range batch {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if len(mask) != len(x) {
			return nil, nil, errors.Wrapf(errors.ErrInvalidArg, "mask length %d != sequence length %d", len(mask), len(x))
		}
		h, out := m.forward(x, mask)
		logits[b] = out
		grads[b] = m.backward(h, mask, label)
	}
	return logits, grads, nil
}

// forward pooled = Σ mask_t·x_t；h = tanh(W1·pooled + b1)；logits = W2·h + b2
func (m *Model) forward(x [][]float64, mask []int) ([]float64, []float64) {
	pooled := make([]float64, m.emb.dim)
	for t, row := range x {
		if t < len(mask) && mask[t] == 0 {
			continue
		}
		floats.Add(pooled, row)
	}
	h := make([]float64, len(m.w.W1))
	for i, row := range m.w.W1 {
		h[i] = math.Tanh(floats.Dot(row, pooled) + m.w.B1[i])
	}
	logits := make([]float64, len(m.w.W2))
	for l, row := range m.w.W2 {
		logits[l] = floats.Dot(row, h) + m.w.B2[l]
	}
	return h, logits
}

// backward ∂logit_l/∂x_t = mask_t · W1ᵀ((1−h²) ⊙ W2[l])，与 t 无关
func (m *Model) backward(h []float64, mask []int, label int) [][]float64 {
	dz := make([]float64, len(h))
	for i, hv := range h {
		dz[i] = (1 - hv*hv) * m.w.W2[label][i]
	}
	dPooled := make([]float64, m.emb.dim)
	for i, row := range m.w.W1 {
		floats.AddScaled(dPooled, dz[i], row)
	}
	grads := make([][]float64, len(mask))
	for t := range grads {
		g := make([]float64, m.emb.dim)
		if mask[t] != 0 {
			copy(g, dPooled)
		}
		grads[t] = g
	}
	return grads
}

type embeddingTable struct {
	rows [][]float64
	dim  int
}

func (e *embeddingTable) Dim() int { return e.dim }

// Embed 越界 id 按零向量处理
func (e *embeddingTable) Embed(ids []int) [][]float64 {
	out := make([][]float64, len(ids))
	for i, id := range ids {
		v := make([]float64, e.dim)
		if id >= 0 && id < len(e.rows) {
			copy(v, e.rows[id])
		}
		out[i] = v
	}
	return out
}
