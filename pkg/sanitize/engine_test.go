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
	"reflect"
	"strings"
	"testing"
)

// TestSanitize_StripURLs 测试 URL 去除
func TestSanitize_StripURLs(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	res := e.Sanitize("see https://example.com/a?b=1 for   more\n")
	if res.Text != "see for more" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if !reflect.DeepEqual(res.RulesApplied, []string{"strip_urls"}) {
		t.Errorf("unexpected rules: %v", res.RulesApplied)
	}
	if res.Audit.Version != AuditVersion || res.Audit != AuditOf("see for more") || len(res.Audit.SHA256) != 64 {
		t.Errorf("unexpected audit: %+v", res.Audit)
	}
}

// TestSanitize_RedditAndUserRefs 测试社区与用户引用
func TestSanitize_RedditAndUserRefs(t *testing.T) {
	text := "posted in r/depression and /R/Anxiety by u/someone"
	res := NewEngine(DefaultPolicy()).Sanitize(text)
	if res.Text != "posted in and by u/someone" {
		t.Errorf("user refs kept by default, got %q", res.Text)
	}

	res = NewEngine(Policy{StripRedditRefs: true, StripUserRefs: true}).Sanitize(text)
	if res.Text != "posted in and by" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if !reflect.DeepEqual(res.RulesApplied, []string{"strip_reddit_refs", "strip_user_refs"}) {
		t.Errorf("unexpected rules: %v", res.RulesApplied)
	}
}

// TestSanitize_MaskConditions 测试病症同义词遮蔽
func TestSanitize_MaskConditions(t *testing.T) {
	e := NewEngine(Policy{MaskConditions: true})
	res := e.Sanitize("My Post-Traumatic stress and Major Depressive Disorder; addition is fine")
	want := "My [MASKED_CONDITION] stress and [MASKED_CONDITION]; addition is fine"
	if res.Text != want {
		t.Errorf("got %q, want %q", res.Text, want)
	}
	if !reflect.DeepEqual(res.RulesApplied, []string{"mask_conditions"}) {
		t.Errorf("unexpected rules: %v", res.RulesApplied)
	}
	if strings.Contains(strings.ToLower(e.Sanitize("ADHD and OCD").Text), "adhd") {
		t.Error("case-insensitive masking failed")
	}
}

// TestSanitize_NoRuleHit 测试未命中规则
func TestSanitize_NoRuleHit(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Sanitize("  plain\ttext  ")
	if res.Text != "plain text" || res.RulesApplied == nil || len(res.RulesApplied) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	empty := NewEngine(DefaultPolicy()).Sanitize("")
	if empty.Text != "" || empty.Audit != AuditOf("") {
		t.Errorf("unexpected empty result: %+v", empty)
	}
}

func TestSkip(t *testing.T) {
	res := Skip("raw  text")
	if res.Text != "raw  text" || res.Audit != SkippedAudit || res.RulesApplied[0] != "skipped" {
		t.Errorf("unexpected skip result: %+v", res)
	}
}
