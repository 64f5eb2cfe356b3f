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

// Package modeltest 提供关键词驱动的小型参考模型，供各包测试与 CLI demo 使用
//
// 每个 label 占一个嵌入维度，W1 为单位阵，W2 = 3·I，b2 = -2：
// 不含关键词的文本所有 logit 为 -2（p≈0.119），
// "depression" 单独出现时 depression 的 logit = 3·tanh(2) − 2 ≈ 0.892（p≈0.709）。
package modeltest

import (
	"sort"

	"text2diag/internal/model/mlp"
	"text2diag/internal/model/wordtok"
)

// Labels 固定顺序的 label 集合
var Labels = []string{"adhd", "anxiety", "bipolar", "depression", "ocd", "ptsd"}

// Keywords 关键词 → (label, 权重)；负权重用于构造负 delta 场景
var Keywords = map[string]struct {
	Label  string
	Weight float64
}{
	"depression": {"depression", 2.0},
	"depressed":  {"depression", 1.5},
	"hopeless":   {"depression", 1.0},
	"fine":       {"depression", -1.0},
	"anxiety":    {"anxiety", 2.0},
	"anxious":    {"anxiety", 1.5},
	"panic":      {"anxiety", 1.5},
	"trauma":     {"ptsd", 2.0},
	"flashbacks": {"ptsd", 1.5},
	"nightmares": {"ptsd", 1.0},
	"adhd":       {"adhd", 2.0},
	"focus":      {"adhd", 1.0},
	"manic":      {"bipolar", 2.0},
	"mania":      {"bipolar", 2.0},
	"compulsive": {"ocd", 2.0},
}

// 中性词，嵌入为零向量
var neutral = []string{
	"i", "have", "been", "diagnosed", "with", "and", "it's", "hard", "the", "weather",
	"is", "nice", "today", "a", "my", "feel", "am", "so", "can't", "at", "work", "night",
	"every", "lately", "about", "to", "of", "in", "it", "really", ".", ",", "!", "?",
}

// Weights 构造固定权重
func Weights() mlp.Weights {
	dim := len(Labels)
	labelIdx := make(map[string]int, dim)
	for i, l := range Labels {
		labelIdx[l] = i
	}

	vocab := []string{wordtok.PadToken, wordtok.UnkToken, wordtok.ClsToken, wordtok.SepToken}
	vocab = append(vocab, neutral...)
	vocab = append(vocab, sortedKeywords()...)
	emb := make([][]float64, len(vocab))
	for i, w := range vocab {
		row := make([]float64, dim)
		if kw, ok := Keywords[w]; ok {
			row[labelIdx[kw.Label]] = kw.Weight
		}
		emb[i] = row
	}

	w1 := make([][]float64, dim)
	w2 := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		w1[i] = make([]float64, dim)
		w1[i][i] = 1
		w2[i] = make([]float64, dim)
		w2[i][i] = 3
	}
	b2 := make([]float64, dim)
	for i := range b2 {
		b2[i] = -2
	}
	return mlp.Weights{
		Name:       "text2diag-fixture",
		Labels:     append([]string(nil), Labels...),
		Vocab:      vocab,
		Embeddings: emb,
		W1:         w1,
		B1:         make([]float64, dim),
		W2:         w2,
		B2:         b2,
		MaxLen:     128,
	}
}

// New 返回参考模型与匹配的分词器
func New() (*mlp.Model, *wordtok.Tokenizer) {
	m, err := mlp.New(Weights())
	if err != nil {
		panic(err)
	}
	tok, err := m.Tokenizer(0)
	if err != nil {
		panic(err)
	}
	return m, tok
}

func sortedKeywords() []string {
	out := make([]string, 0, len(Keywords))
	for k := range Keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
