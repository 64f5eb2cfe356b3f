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

// Package sanitize 输入文本清洗：去除 URL、社区/用户引用，可选遮蔽病症同义词
package sanitize

// Rule 清洗规则名，写入 meta.preprocessing.rules_applied
type Rule string

const (
	RuleStripURLs       Rule = "strip_urls"
	RuleStripRedditRefs Rule = "strip_reddit_refs"
	RuleStripUserRefs   Rule = "strip_user_refs"
	RuleMaskConditions  Rule = "mask_conditions"
	RuleSkipped         Rule = "skipped"
)

// MaskToken 病症同义词替换文本
const MaskToken = "[MASKED_CONDITION]"

// Policy 清洗策略
type Policy struct {
	StripURLs       bool
	StripRedditRefs bool
	StripUserRefs   bool
	MaskConditions  bool
}

// DefaultPolicy 默认策略：去除 URL 与社区引用
func DefaultPolicy() Policy {
	return Policy{StripURLs: true, StripRedditRefs: true}
}

// LabelSynonyms 各 label 的显式提及形式，MaskConditions 时按整词遮蔽
var LabelSynonyms = map[string][]string{
	"adhd":          {"adhd", "add", "attention deficit"},
	"depression":    {"depression", "depressed", "major depressive disorder", "mdd"},
	"ptsd":          {"ptsd", "post traumatic", "post-traumatic", "trauma"},
	"ocd":           {"ocd", "obsessive compulsive", "obsessive-compulsive"},
	"anxiety":       {"anxiety", "anxious", "gad", "social anxiety"},
	"bipolar":       {"bipolar", "bp1", "bp2", "mania", "manic"},
	"schizophrenia": {"schizophrenia", "schizo", "psychosis", "psychotic"},
	"autism":        {"autism", "autistic", "asd", "asperger", "aspergers"},
	"bpd":           {"bpd", "borderline"},
}
