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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"

	"text2diag/pkg/errors"
)

// requiredKeys 顶层必需键，顺序即报告顺序
var requiredKeys = []string{"version", "model_info", "calibration", "labels", "abstain", "meta"}

// Validate 返回全部违例；空切片表示通过。顶层键缺失时不再继续深入检查
func Validate(doc Document) []string {
	var v []string
	for _, k := range requiredKeys {
		if _, ok := doc[k]; !ok {
			v = append(v, "missing top-level key: "+k)
		}
	}
	if len(v) > 0 {
		return v
	}

	if s, ok := doc["version"].(string); !ok || s != Version {
		v = append(v, fmt.Sprintf("invalid version: %v", doc["version"]))
	}
	for _, k := range []string{"model_info", "calibration", "meta"} {
		if _, ok := doc[k].(map[string]any); !ok {
			v = append(v, k+" must be an object")
		}
	}
	if a, ok := doc["abstain"].(map[string]any); !ok {
		v = append(v, "abstain must be an object")
	} else {
		if _, ok := a["is_abstain"].(bool); !ok {
			v = append(v, "abstain.is_abstain must be bool")
		}
		if !isStringList(a["reasons"]) {
			v = append(v, "abstain.reasons must be a list of strings")
		}
	}

	labels, ok := doc["labels"].([]any)
	if !ok {
		return append(v, "labels must be a list")
	}
	for i, raw := range labels {
		v = append(v, validateLabel(i, raw)...)
	}
	return v
}

// validateLabel 单个 label 的违例
func validateLabel(i int, raw any) []string {
	lbl, ok := raw.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("label %d is not an object", i)}
	}
	var v []string
	if name, ok := lbl["name"].(string); !ok || name == "" {
		v = append(v, fmt.Sprintf("label %d missing name", i))
	}
	p, hasProb := lbl["prob_calibrated"]
	if !hasProb {
		v = append(v, fmt.Sprintf("label %d missing prob_calibrated", i))
	} else if f, ok := asNumber(p); !ok || math.IsNaN(f) || f < 0 || f > 1 {
		v = append(v, fmt.Sprintf("label %d prob_calibrated out of range [0,1]: %v", i, p))
	}
	d, hasDecision := lbl["decision"]
	if !hasDecision {
		v = append(v, fmt.Sprintf("label %d missing decision", i))
	} else if f, ok := asNumber(d); !ok || (f != 0 && f != 1) {
		v = append(v, fmt.Sprintf("label %d decision must be 0 or 1, got %v", i, d))
	}

	rawSpans, present := lbl["evidence_spans"]
	if !present {
		return v
	}
	spans, ok := rawSpans.([]any)
	if !ok {
		return append(v, fmt.Sprintf("label %d evidence_spans must be a list", i))
	}
	for j, rs := range spans {
		s, ok := rs.(map[string]any)
		if !ok {
			v = append(v, fmt.Sprintf("label %d span %d is not an object", i, j))
			continue
		}
		if snippet, _ := s["snippet"].(string); utf8.RuneCountInString(snippet) > MaxSnippetLen {
			v = append(v, fmt.Sprintf("label %d span %d snippet too long (>%d chars)", i, j, MaxSnippetLen))
		}
		start, end := offset(s["start"]), offset(s["end"])
		if start < 0 {
			v = append(v, fmt.Sprintf("label %d span %d start < 0", i, j))
		}
		if end < start {
			v = append(v, fmt.Sprintf("label %d span %d end < start", i, j))
		}
	}
	return v
}

// offset 缺失或非数值时视为 -1
func offset(v any) float64 {
	f, ok := asNumber(v)
	if !ok || math.IsNaN(f) {
		return -1
	}
	return f
}

func isStringList(v any) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}

// ValidateJSON 校验外部 JSON 记录；违例以 *errors.ContractViolation 返回
func ValidateJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrapf(errors.ErrInvalidArg, "decode contract record: %v", err)
	}
	if doc == nil {
		return errors.Wrap(errors.ErrInvalidArg, "contract record must be a JSON object")
	}
	if v := Validate(doc); len(v) > 0 {
		return errors.NewContractViolation(v)
	}
	return nil
}
