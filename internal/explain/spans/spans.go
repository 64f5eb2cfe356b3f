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

// Package spans 将 token 归因合并为连续的证据片段
package spans

import (
	"sort"
	"strings"
	"unicode/utf8"

	"text2diag/internal/explain/attribution"
)

// 默认参数
const (
	DefaultTopK     = 12
	DefaultMaxSpans = 3
	MaxSnippetLen   = 200
)

// structural 不参与证据的结构性 token
var structural = map[string]struct{}{
	"[CLS]": {}, "[SEP]": {}, "[PAD]": {},
	"<s>": {}, "</s>": {}, "<pad>": {},
}

// Span 证据片段；Start/End 为原文字节偏移，Score 为成员 token 分数之和
type Span struct {
	Start   int      `json:"start"`
	End     int      `json:"end"`
	Score   float64  `json:"score"`
	Snippet string   `json:"snippet"`
	Tokens  []string `json:"-"`
}

// Options 选择参数
type Options struct {
	TopK     int
	MaxSpans int
}

// Select 取正分 top-k token，按原文顺序合并相邻 token，按分数降序保留至多 MaxSpans 个
func Select(attrs []attribution.TokenAttribution, text string, opts Options) []Span {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxSpans := opts.MaxSpans
	if maxSpans <= 0 {
		maxSpans = DefaultMaxSpans
	}

	cands := make([]attribution.TokenAttribution, 0, len(attrs))
	for _, a := range attrs {
		if !(a.Score > 0) || IsStructural(a.Token) {
			continue
		}
		if a.Start >= a.End || a.Start < 0 || a.End > len(text) {
			continue
		}
		cands = append(cands, a)
	}
	if len(cands) == 0 {
		return nil
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Index < cands[j].Index
	})
	if len(cands) > topK {
		cands = cands[:topK]
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Index < cands[j].Index })

	var merged []Span
	cur := Span{Start: cands[0].Start, End: cands[0].End, Score: cands[0].Score, Tokens: []string{cands[0].Token}}
	for _, a := range cands[1:] {
		if a.Start <= cur.End+1 {
			if a.End > cur.End {
				cur.End = a.End
			}
			cur.Score += a.Score
			cur.Tokens = append(cur.Tokens, a.Token)
			continue
		}
		merged = append(merged, cur)
		cur = Span{Start: a.Start, End: a.End, Score: a.Score, Tokens: []string{a.Token}}
	}
	merged = append(merged, cur)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Start < merged[j].Start
	})
	if len(merged) > maxSpans {
		merged = merged[:maxSpans]
	}
	for i := range merged {
		merged[i].Snippet = Snippet(text[merged[i].Start:merged[i].End])
	}
	return merged
}

// IsStructural 是否为结构性 token
func IsStructural(tok string) bool {
	_, ok := structural[tok]
	return ok
}

// Snippet 折叠空白并截断到 200 个字符（197 + "..."）
func Snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return Truncate(s, MaxSnippetLen)
}

// Truncate 超过 limit 个字符时截断为 limit-3 个字符加 "..."
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - 3
	if keep < 0 {
		keep = 0
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + "..."
		}
		n++
	}
	return s + "..."
}
