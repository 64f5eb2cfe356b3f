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

package contract

import (
	"math"
	"unicode/utf8"

	"text2diag/internal/explain/spans"
)

// Repair 保信息修复，返回修复后的副本以及是否有改动；输入文档不会被修改
//
//   - 有限但越界的概率截断到 [0,1]
//   - bool 决策转为 0/1，整数值浮点决策转为 int
//   - 过长片段截断为 197 字符 + "..."
//   - 偏移非法或不是对象的片段被丢弃
//   - abstain 缺少 is_abstain / reasons 时补默认值
func Repair(doc Document) (Document, bool) {
	fixed := doc.Clone()
	repaired := false

	if a, ok := fixed["abstain"].(map[string]any); ok {
		if _, ok := a["is_abstain"]; !ok {
			a["is_abstain"] = false
			repaired = true
		}
		if _, ok := a["reasons"]; !ok {
			a["reasons"] = []any{}
			repaired = true
		}
	}

	labels, ok := fixed["labels"].([]any)
	if !ok {
		return fixed, repaired
	}
	for _, raw := range labels {
		lbl, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if repairLabel(lbl) {
			repaired = true
		}
	}
	return fixed, repaired
}

func repairLabel(lbl map[string]any) bool {
	repaired := false
	if p, ok := asNumber(lbl["prob_calibrated"]); ok && !math.IsNaN(p) {
		switch {
		case p < 0:
			lbl["prob_calibrated"] = 0.0
			repaired = true
		case p > 1:
			lbl["prob_calibrated"] = 1.0
			repaired = true
		}
	}

	switch d := lbl["decision"].(type) {
	case bool:
		if d {
			lbl["decision"] = 1
		} else {
			lbl["decision"] = 0
		}
		repaired = true
	case float64:
		if d == 0 || d == 1 {
			lbl["decision"] = int(d)
			repaired = true
		}
	}

	list, ok := lbl["evidence_spans"].([]any)
	if !ok {
		return repaired
	}
	valid := make([]any, 0, len(list))
	for _, rs := range list {
		s, ok := rs.(map[string]any)
		if !ok {
			repaired = true
			continue
		}
		if snippet, ok := s["snippet"].(string); ok && utf8.RuneCountInString(snippet) > MaxSnippetLen {
			s["snippet"] = spans.Truncate(snippet, MaxSnippetLen)
			repaired = true
		}
		start, end := offset(s["start"]), offset(s["end"])
		if start >= 0 && end >= start {
			valid = append(valid, s)
		} else {
			repaired = true
		}
	}
	lbl["evidence_spans"] = valid
	return repaired
}
