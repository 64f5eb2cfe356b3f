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
	"fmt"
	"strings"

	"text2diag/pkg/errors"
)

// MaxRepairRounds 修复轮数上限
const MaxRepairRounds = 2

// ReasonPrefix 残留违例写入 abstain.reasons 时的前缀
const ReasonPrefix = "contract error: "

// Report 定稿过程记录
type Report struct {
	Violations    []string // 首次校验的违例
	Repaired      bool
	Rounds        int
	Residual      []string // 修复后仍存在的违例
	DroppedLabels []string
}

// OK 首次校验即通过
func (r Report) OK() bool { return len(r.Violations) == 0 }

// Err 残留违例以 *errors.ContractViolation 形式返回，无残留时为 nil
func (r Report) Err() error {
	if len(r.Residual) == 0 {
		return nil
	}
	return errors.NewContractViolation(r.Residual)
}

// Finalize Build → Validate → (Repair → Validate)* → Final
//
// 残留违例原样追加为 "contract error: <violation>" 并强制弃权；仍违例的 label 被移除，
// 顶层结构缺失时退化为骨架记录，因此返回值总能通过 Validate。返回值是独立副本。
func Finalize(o Output) (Output, Report) {
	doc := ToDocument(o)
	rep := Report{Violations: Validate(doc)}

	v := rep.Violations
	for rep.Rounds < MaxRepairRounds && len(v) > 0 {
		var changed bool
		doc, changed = Repair(doc)
		rep.Rounds++
		rep.Repaired = rep.Repaired || changed
		v = Validate(doc)
		if !changed {
			break
		}
	}
	rep.Residual = v
	if len(v) > 0 {
		doc, rep.DroppedLabels = degrade(doc)
	}

	out := FromDocument(doc)
	out.DependencyGraph = o.DependencyGraph
	out.DependencyGraphActive = o.DependencyGraphActive
	out.DependencyGraphTopK = o.DependencyGraphTopK
	out.ExplanationGraph = o.ExplanationGraph
	for _, r := range rep.Residual {
		out.Abstain.Reasons = append(out.Abstain.Reasons, ReasonPrefix+r)
	}
	for _, name := range rep.DroppedLabels {
		out.Abstain.Reasons = append(out.Abstain.Reasons, fmt.Sprintf("%slabel %s removed from record", ReasonPrefix, name))
	}
	if len(rep.Residual) > 0 {
		out.Abstain.IsAbstain = true
	}
	return out.Clone(), rep
}

// degrade 移除仍违例的 label，补齐顶层结构
func degrade(doc Document) (Document, []string) {
	out := doc.Clone()
	if s, ok := out["version"].(string); !ok || s != Version {
		out["version"] = Version
	}
	for _, k := range []string{"model_info", "calibration", "meta"} {
		if _, ok := out[k].(map[string]any); !ok {
			out[k] = map[string]any{}
		}
	}
	a, ok := out["abstain"].(map[string]any)
	if !ok {
		a = map[string]any{}
		out["abstain"] = a
	}
	if _, ok := a["is_abstain"].(bool); !ok {
		a["is_abstain"] = true
	}
	if !isStringList(a["reasons"]) {
		a["reasons"] = stringsToAny(anyToStrings(a["reasons"]))
	}

	labels, _ := out["labels"].([]any)
	kept := make([]any, 0, len(labels))
	var dropped []string
	for i, raw := range labels {
		if len(validateLabel(i, raw)) == 0 {
			kept = append(kept, raw)
			continue
		}
		name := fmt.Sprintf("#%d", i)
		if m, ok := raw.(map[string]any); ok {
			if n, ok := m["name"].(string); ok && strings.TrimSpace(n) != "" {
				name = n
			}
		}
		dropped = append(dropped, name)
	}
	out["labels"] = kept
	return out, dropped
}
