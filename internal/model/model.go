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

// Package model 定义分类器/分词器的能力接口、注册表与访问闸门
package model

import (
	"context"
	"math"
)

// Encoding 分词结果；Offsets 为原文的字节区间 [start, end)
type Encoding struct {
	Tokens  []string
	IDs     []int
	Offsets [][2]int
	Mask    []int // 1 表示有效位置（含 [CLS]/[SEP]），0 表示 padding
}

// Len 序列长度
func (e Encoding) Len() int {
	return len(e.IDs)
}

// Tokenizer 分词器
type Tokenizer interface {
	Encode(text string) Encoding
	MaxLen() int
	PadID() int
}

// Classifier 多标签分类器，Forward 返回每个 label 的原始 logit
type Classifier interface {
	Labels() []string
	Forward(ctx context.Context, enc Encoding) ([]float64, error)
}

// EmbeddingLayer 输入嵌入层访问器
type EmbeddingLayer interface {
	Dim() int
	// Embed 按 token id 查表，返回 [len(ids)][Dim] 的新切片
	Embed(ids []int) [][]float64
}

// Differentiable 可对输入嵌入求导的分类器
type Differentiable interface {
	Classifier
	EmbeddingLayer() EmbeddingLayer
	// Gradients 对 batch 中每条嵌入序列前向，返回 logits[B][L] 与目标 label logit 对嵌入的梯度 grads[B][T][D]
	Gradients(ctx context.Context, batch [][][]float64, mask []int, label int) ([][]float64, [][][]float64, error)
}

// Reentrant 可选能力：Reentrant() 为 true 的分类器允许多个 goroutine 同时调用 Forward/Gradients
//
// 未实现该接口的分类器视为不可重入，同一实例上的调用必须串行。
type Reentrant interface {
	Reentrant() bool
}

// IsReentrant 分类器是否声明可重入
func IsReentrant(c Classifier) bool {
	r, ok := c.(Reentrant)
	return ok && r.Reentrant()
}

// Sigmoid logistic 函数
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// Calibrate 温度标定：p = σ(logit / T)
func Calibrate(logits []float64, temperature float64) []float64 {
	probs := make([]float64, len(logits))
	for i, l := range logits {
		probs[i] = Sigmoid(l / temperature)
	}
	return probs
}

// LabelIndex 返回 label 下标，不存在时为 -1
func LabelIndex(c Classifier, name string) int {
	for i, l := range c.Labels() {
		if l == name {
			return i
		}
	}
	return -1
}
