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

// Package wordtok 词/标点级分词器，保留原文字节偏移
package wordtok

import (
	"fmt"
	"regexp"
	"strings"

	"text2diag/internal/model"
)

// 特殊 token
const (
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
)

// 特殊 token 固定占用词表前四位
var specials = []string{PadToken, UnkToken, ClsToken, SepToken}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_']+|[^\s\p{L}\p{N}_']`)

// Tokenizer 小写化的词/标点分词器
type Tokenizer struct {
	vocab  map[string]int
	words  []string
	maxLen int
}

var _ model.Tokenizer = (*Tokenizer)(nil)

// New 由词表构建分词器；词表不以特殊 token 开头时自动补在最前面
func New(vocab []string, maxLen int) (*Tokenizer, error) {
	if maxLen < 3 {
		return nil, fmt.Errorf("wordtok: max_len must be >= 3, got %d", maxLen)
	}
	t := &Tokenizer{vocab: make(map[string]int), maxLen: maxLen}
	words := make([]string, 0, len(vocab)+len(specials))
	if !hasSpecialPrefix(vocab) {
		words = append(words, specials...)
	}
	words = append(words, vocab...)
	for i, w := range words {
		if _, dup := t.vocab[w]; dup {
			return nil, fmt.Errorf("wordtok: duplicate vocab entry %q", w)
		}
		t.vocab[w] = i
	}
	t.words = words
	return t, nil
}

func hasSpecialPrefix(vocab []string) bool {
	if len(vocab) < len(specials) {
		return false
	}
	for i, s := range specials {
		if vocab[i] != s {
			return false
		}
	}
	return true
}

// Encode 分词；超长时截断到 MaxLen（含 [CLS]/[SEP]）
func (t *Tokenizer) Encode(text string) model.Encoding {
	locs := tokenPattern.FindAllStringIndex(text, -1)
	if limit := t.maxLen - 2; len(locs) > limit {
		locs = locs[:limit]
	}
	n := len(locs) + 2
	enc := model.Encoding{
		Tokens:  make([]string, 0, n),
		IDs:     make([]int, 0, n),
		Offsets: make([][2]int, 0, n),
		Mask:    make([]int, 0, n),
	}
	enc.Tokens = append(enc.Tokens, ClsToken)
	enc.IDs = append(enc.IDs, t.vocab[ClsToken])
	enc.Offsets = append(enc.Offsets, [2]int{0, 0})
	enc.Mask = append(enc.Mask, 1)
	for _, loc := range locs {
		tok := strings.ToLower(text[loc[0]:loc[1]])
		id, ok := t.vocab[tok]
		if !ok {
			id = t.vocab[UnkToken]
		}
		enc.Tokens = append(enc.Tokens, tok)
		enc.IDs = append(enc.IDs, id)
		enc.Offsets = append(enc.Offsets, [2]int{loc[0], loc[1]})
		enc.Mask = append(enc.Mask, 1)
	}
	enc.Tokens = append(enc.Tokens, SepToken)
	enc.IDs = append(enc.IDs, t.vocab[SepToken])
	enc.Offsets = append(enc.Offsets, [2]int{0, 0})
	enc.Mask = append(enc.Mask, 1)
	return enc
}

// MaxLen 最大序列长度
func (t *Tokenizer) MaxLen() int { return t.maxLen }

// PadID padding token id
func (t *Tokenizer) PadID() int { return t.vocab[PadToken] }

// VocabSize 词表大小
func (t *Tokenizer) VocabSize() int { return len(t.words) }

// ID 返回词的 id，不存在时为 [UNK]
func (t *Tokenizer) ID(word string) int {
	if id, ok := t.vocab[strings.ToLower(word)]; ok {
		return id
	}
	return t.vocab[UnkToken]
}
