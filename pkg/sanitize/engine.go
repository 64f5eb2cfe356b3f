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

package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// AuditVersion 清洗规则版本，规则变更时递增
const AuditVersion = "sanitize_v1"

var (
	urlPattern       = regexp.MustCompile(`https?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*(),]|%[0-9a-fA-F]{2})+`)
	redditRefPattern = regexp.MustCompile(`(?i)/?r/\w+`)
	userRefPattern   = regexp.MustCompile(`(?i)/?u/\w+`)
)

// Audit 清洗审计：规则版本与清洗后文本的 SHA-256
type Audit struct {
	Version string `json:"version"`
	SHA256  string `json:"sha256"`
}

// SkippedAudit 未清洗时写入记录的审计值
var SkippedAudit = Audit{Version: "skipped", SHA256: "none"}

// Result 清洗结果
type Result struct {
	Text         string
	RulesApplied []string
	Audit        Audit
}

// Engine 清洗引擎，构建后不可变，可并发使用
type Engine struct {
	policy  Policy
	masking *regexp.Regexp
}

// NewEngine 按策略编译正则
func NewEngine(policy Policy) *Engine {
	e := &Engine{policy: policy}
	if policy.MaskConditions {
		e.masking = conditionPattern(LabelSynonyms)
	}
	return e
}

// Policy 返回策略副本
func (e *Engine) Policy() Policy { return e.policy }

// Sanitize 依次应用各规则；只有实际命中的规则记入 RulesApplied，最后规整空白
func (e *Engine) Sanitize(text string) Result {
	rules := []string{}
	clean := text

	apply := func(enabled bool, re *regexp.Regexp, rule Rule, repl string) {
		if !enabled || re == nil || !re.MatchString(clean) {
			return
		}
		clean = re.ReplaceAllString(clean, repl)
		rules = append(rules, string(rule))
	}
	apply(e.policy.StripURLs, urlPattern, RuleStripURLs, "")
	apply(e.policy.StripRedditRefs, redditRefPattern, RuleStripRedditRefs, "")
	apply(e.policy.StripUserRefs, userRefPattern, RuleStripUserRefs, "")
	apply(e.policy.MaskConditions, e.masking, RuleMaskConditions, MaskToken)

	clean = strings.Join(strings.Fields(clean), " ")
	return Result{Text: clean, RulesApplied: rules, Audit: AuditOf(clean)}
}

// Skip 不清洗，原样返回并标记 skipped
func Skip(text string) Result {
	return Result{Text: text, RulesApplied: []string{string(RuleSkipped)}, Audit: SkippedAudit}
}

// AuditOf 计算文本审计值
func AuditOf(text string) Audit {
	sum := sha256.Sum256([]byte(text))
	return Audit{Version: AuditVersion, SHA256: hex.EncodeToString(sum[:])}
}

// conditionPattern 合并全部同义词为一个整词、忽略大小写的正则；长词优先
func conditionPattern(synonyms map[string][]string) *regexp.Regexp {
	seen := make(map[string]bool)
	var words []string
	for _, list := range synonyms {
		for _, w := range list {
			w = strings.ToLower(w)
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
