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
	"encoding/json"
	"math"
)

// Document 契约的通用文档形式（map/slice 树），类型化记录与外部 JSON 共用同一套校验
//
// 由 ToDocument 手工构建而不经过 JSON，NaN/Inf 等非法值得以保留并被校验发现。
type Document map[string]any

// ToDocument 类型化记录 → 文档；图结构不参与契约校验，不写入文档
func ToDocument(o Output) Document {
	labels := make([]any, len(o.Labels))
	for i, l := range o.Labels {
		labels[i] = labelToMap(l)
	}
	return Document{
		"version":    o.Version,
		"example_id": o.ExampleID,
		"model_info": map[string]any{
			"model_name":  o.ModelInfo.ModelName,
			"checkpoint":  o.ModelInfo.Checkpoint,
			"max_len":     o.ModelInfo.MaxLen,
			"window_size": o.ModelInfo.WindowSize,
		},
		"calibration": map[string]any{
			"method":      o.Calibration.Method,
			"temperature": o.Calibration.Temperature,
			"timestamp":   o.Calibration.Timestamp,
		},
		"labels": labels,
		"abstain": map[string]any{
			"is_abstain": o.Abstain.IsAbstain,
			"reasons":    stringsToAny(o.Abstain.Reasons),
		},
		"meta": map[string]any{
			"created_at": o.Meta.CreatedAt,
			"run_id":     o.Meta.RunID,
			"preprocessing": map[string]any{
				"sanitized":     o.Meta.Preprocessing.Sanitized,
				"rules_applied": stringsToAny(o.Meta.Preprocessing.RulesApplied),
				"sanitization_audit": map[string]any{
					"version": o.Meta.Preprocessing.SanitizationAudit.Version,
					"sha256":  o.Meta.Preprocessing.SanitizationAudit.SHA256,
				},
			},
		},
	}
}

func labelToMap(l Label) map[string]any {
	spans := make([]any, len(l.EvidenceSpans))
	for i, s := range l.EvidenceSpans {
		spans[i] = map[string]any{
			"start":   s.Start,
			"end":     s.End,
			"score":   s.Score,
			"snippet": s.Snippet,
		}
	}
	faith := map[string]any{
		"delta":       l.Faithfulness.Delta,
		"is_faithful": l.Faithfulness.IsFaithful,
	}
	if l.Faithfulness.Status != "" {
		faith["faithfulness_status"] = l.Faithfulness.Status
	}
	if l.Faithfulness.PFull != nil {
		faith["p_full"] = *l.Faithfulness.PFull
	}
	if l.Faithfulness.PMasked != nil {
		faith["p_masked"] = *l.Faithfulness.PMasked
	}
	if l.Faithfulness.Flag != "" {
		faith["flag"] = l.Faithfulness.Flag
	}
	meta := map[string]any{"method": l.EvidenceMeta.Method}
	if l.EvidenceMeta.IGSteps != 0 {
		meta["ig_steps"] = l.EvidenceMeta.IGSteps
	}
	if l.EvidenceMeta.SkippedReason != "" {
		meta["skipped_reason"] = l.EvidenceMeta.SkippedReason
	}
	if l.EvidenceMeta.MinProb != nil {
		meta["min_prob"] = *l.EvidenceMeta.MinProb
	}
	return map[string]any{
		"name":             l.Name,
		"prob_calibrated":  l.ProbCalibrated,
		"decision":         l.Decision,
		"threshold_used":   l.ThresholdUsed,
		"threshold_source": l.ThresholdSource,
		"evidence_spans":   spans,
		"faithfulness":     faith,
		"evidence_meta":    meta,
	}
}

// FromDocument 文档 → 类型化记录；调用方应先保证文档通过校验，缺失字段取零值
func FromDocument(doc Document) Output {
	o := Output{
		Version:   str(doc["version"]),
		ExampleID: str(doc["example_id"]),
	}
	if mi, ok := doc["model_info"].(map[string]any); ok {
		o.ModelInfo = ModelInfo{
			ModelName:  str(mi["model_name"]),
			Checkpoint: str(mi["checkpoint"]),
			MaxLen:     integer(mi["max_len"]),
			WindowSize: integer(mi["window_size"]),
		}
	}
	if c, ok := doc["calibration"].(map[string]any); ok {
		o.Calibration = Calibration{
			Method:      str(c["method"]),
			Temperature: number(c["temperature"]),
			Timestamp:   str(c["timestamp"]),
		}
	}
	if labels, ok := doc["labels"].([]any); ok {
		o.Labels = make([]Label, 0, len(labels))
		for _, raw := range labels {
			if m, ok := raw.(map[string]any); ok {
				o.Labels = append(o.Labels, labelFromMap(m))
			}
		}
	}
	if a, ok := doc["abstain"].(map[string]any); ok {
		o.Abstain.IsAbstain, _ = a["is_abstain"].(bool)
		o.Abstain.Reasons = anyToStrings(a["reasons"])
	}
	if o.Abstain.Reasons == nil {
		o.Abstain.Reasons = []string{}
	}
	if m, ok := doc["meta"].(map[string]any); ok {
		o.Meta.CreatedAt = str(m["created_at"])
		o.Meta.RunID = str(m["run_id"])
		if p, ok := m["preprocessing"].(map[string]any); ok {
			o.Meta.Preprocessing.Sanitized, _ = p["sanitized"].(bool)
			o.Meta.Preprocessing.RulesApplied = anyToStrings(p["rules_applied"])
			if audit, ok := p["sanitization_audit"].(map[string]any); ok {
				o.Meta.Preprocessing.SanitizationAudit = SanitizationAudit{
					Version: str(audit["version"]),
					SHA256:  str(audit["sha256"]),
				}
			}
		}
	}
	return o
}

func labelFromMap(m map[string]any) Label {
	l := Label{
		Name:            str(m["name"]),
		ProbCalibrated:  number(m["prob_calibrated"]),
		Decision:        integer(m["decision"]),
		ThresholdUsed:   number(m["threshold_used"]),
		ThresholdSource: str(m["threshold_source"]),
		EvidenceSpans:   []EvidenceSpan{},
	}
	if spans, ok := m["evidence_spans"].([]any); ok {
		for _, raw := range spans {
			s, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			l.EvidenceSpans = append(l.EvidenceSpans, EvidenceSpan{
				Start:   integer(s["start"]),
				End:     integer(s["end"]),
				Score:   number(s["score"]),
				Snippet: str(s["snippet"]),
			})
		}
	}
	if f, ok := m["faithfulness"].(map[string]any); ok {
		l.Faithfulness = Faithfulness{
			Delta:  number(f["delta"]),
			Status: str(f["faithfulness_status"]),
			Flag:   str(f["flag"]),
		}
		l.Faithfulness.IsFaithful, _ = f["is_faithful"].(bool)
		if v, ok := asNumber(f["p_full"]); ok {
			l.Faithfulness.PFull = &v
		}
		if v, ok := asNumber(f["p_masked"]); ok {
			l.Faithfulness.PMasked = &v
		}
	}
	if em, ok := m["evidence_meta"].(map[string]any); ok {
		l.EvidenceMeta = EvidenceMeta{
			Method:        str(em["method"]),
			IGSteps:       integer(em["ig_steps"]),
			SkippedReason: str(em["skipped_reason"]),
		}
		if v, ok := asNumber(em["min_prob"]); ok {
			l.EvidenceMeta.MinProb = &v
		}
	}
	return l
}

// Clone 深拷贝文档
func (d Document) Clone() Document {
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Document:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// asNumber 接受 Go 数值类型与 json.Number；bool 不视为数值
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func number(v any) float64 {
	f, _ := asNumber(v)
	return f
}

func integer(v any) int {
	f, ok := asNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func stringsToAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func anyToStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
