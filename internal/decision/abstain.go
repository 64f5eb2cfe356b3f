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

package decision

import (
	"fmt"

	"text2diag/pkg/utils"
)

// 弃权默认参数
const (
	DefaultMinTextLen      = 5
	DefaultConfidenceFloor = 0.40
)

// Kind 弃权触发类型（用于指标）
type Kind string

const (
	KindShortInput    Kind = "short_input"
	KindContract      Kind = "contract"
	KindLowConfidence Kind = "low_confidence"
)

// AbstainState 弃权状态；Reasons 按触发顺序累积，不合并
type AbstainState struct {
	IsAbstain bool
	Reasons   []string
}

// Add 追加原因并置为弃权
func (s *AbstainState) Add(reason string) {
	s.Reasons = append(s.Reasons, reason)
	s.IsAbstain = true
}

// AbstainInput 弃权判定输入
type AbstainInput struct {
	TextLen    int // 清洗后文本的字符数
	ContractOK bool
	Probs      []float64
}

// AbstainPolicy 弃权策略，在契约校验之后独立执行
type AbstainPolicy struct {
	MinTextLen      int
	ConfidenceFloor float64
}

// DefaultAbstainPolicy 默认策略
func DefaultAbstainPolicy() AbstainPolicy {
	return AbstainPolicy{MinTextLen: DefaultMinTextLen, ConfidenceFloor: DefaultConfidenceFloor}
}

// Evaluate 依次检查输入长度、契约、最大置信度；所有命中的原因都会出现
func (p AbstainPolicy) Evaluate(in AbstainInput) (AbstainState, []Kind) {
	var (
		state AbstainState
		kinds []Kind
	)
	if in.TextLen < p.MinTextLen {
		state.Add(fmt.Sprintf("input too short after sanitization (len=%d < %d)", in.TextLen, p.MinTextLen))
		kinds = append(kinds, KindShortInput)
	}
	if !in.ContractOK {
		state.Add("contract validation failed")
		kinds = append(kinds, KindContract)
	}
	// 与记录中的概率同样保留 4 位，原因文本与比较结果一致
	maxProb := utils.Round4(MaxProb(in.Probs))
	if maxProb < p.ConfidenceFloor {
		state.Add(fmt.Sprintf("max confidence %.4f < global confidence floor %.4f", maxProb, p.ConfidenceFloor))
		kinds = append(kinds, KindLowConfidence)
	}
	if state.Reasons == nil {
		state.Reasons = []string{}
	}
	return state, kinds
}

// MaxProb 最大概率，空集合为 0
func MaxProb(probs []float64) float64 {
	max := 0.0
	for _, p := range probs {
		if p > max {
			max = p
		}
	}
	return max
}
