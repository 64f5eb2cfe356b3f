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

// Package evidence label 依赖图与决策解释图
package evidence

import (
	"encoding/json"
	"fmt"
)

// WeightedEdge 有向带权边，JSON 形式为 [src, dst, weight]
type WeightedEdge struct {
	Src    string
	Dst    string
	Weight float64
}

// MarshalJSON 编码为三元组
func (e WeightedEdge) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Src, e.Dst, e.Weight})
}

// UnmarshalJSON 解码三元组
func (e *WeightedEdge) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("edge must be [src, dst, weight], got %d items", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Src); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &e.Dst); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &e.Weight)
}

// DependencyGraph label 依赖图；构建时即保证无环
type DependencyGraph struct {
	Nodes     []string       `json:"nodes"`
	Edges     []WeightedEdge `json:"edges"`
	IsAcyclic bool           `json:"is_acyclic"`
	Dropped   []WeightedEdge `json:"-"` // 为消除环而丢弃的边
}

// Clone 深拷贝；nil 安全
func (g *DependencyGraph) Clone() *DependencyGraph {
	if g == nil {
		return nil
	}
	c := &DependencyGraph{IsAcyclic: g.IsAcyclic}
	c.Nodes = append([]string{}, g.Nodes...)
	c.Edges = append([]WeightedEdge{}, g.Edges...)
	if g.Dropped != nil {
		c.Dropped = append([]WeightedEdge{}, g.Dropped...)
	}
	return c
}

// EvidenceNode 解释图节点
type EvidenceNode struct {
	Type     EvidenceType   `json:"type"`
	ID       string         `json:"id"`
	Summary  string         `json:"summary,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EvidenceType 解释图节点类型
type EvidenceType string

const (
	EvidenceTypeRule         EvidenceType = "rule"
	EvidenceTypeLabel        EvidenceType = "label"
	EvidenceTypeSpan         EvidenceType = "span"
	EvidenceTypeFaithfulness EvidenceType = "faithfulness"
)

// Relation 解释图边类型
type Relation string

const (
	RelationGoverns    Relation = "governs"     // rule → label
	RelationSupports   Relation = "supports"    // span → label
	RelationVerifiedBy Relation = "verified_by" // label → faithfulness
)

// GraphEdge 解释图边
type GraphEdge struct {
	From     string   `json:"src"`
	To       string   `json:"dst"`
	Relation Relation `json:"type"`
	Weight   *float64 `json:"weight,omitempty"`
}

// ExplanationGraphVersion 解释图版本
const ExplanationGraphVersion = "explanation_graph_v1"

// ExplanationGraph 类型化的决策解释图
type ExplanationGraph struct {
	Version   string         `json:"version"`
	Nodes     []EvidenceNode `json:"nodes"`
	Edges     []GraphEdge    `json:"edges"`
	IsAcyclic bool           `json:"is_acyclic"`
}

// Clone 深拷贝；nil 安全
func (g *ExplanationGraph) Clone() *ExplanationGraph {
	if g == nil {
		return nil
	}
	c := &ExplanationGraph{Version: g.Version, IsAcyclic: g.IsAcyclic}
	c.Nodes = make([]EvidenceNode, len(g.Nodes))
	for i, n := range g.Nodes {
		cn := n
		if n.Metadata != nil {
			cn.Metadata = make(map[string]any, len(n.Metadata))
			for k, v := range n.Metadata {
				cn.Metadata[k] = v
			}
		}
		c.Nodes[i] = cn
	}
	c.Edges = make([]GraphEdge, len(g.Edges))
	for i, e := range g.Edges {
		ce := e
		if e.Weight != nil {
			w := *e.Weight
			ce.Weight = &w
		}
		c.Edges[i] = ce
	}
	return c
}

// ExplanationInput 解释图构建输入（来自定稿的决策记录）
type ExplanationInput struct {
	CalibrationMethod string
	Temperature       float64
	Labels            []LabelEvidence
}

// LabelEvidence 单个 label 的决策与证据
type LabelEvidence struct {
	Name            string
	Prob            float64
	Decision        int
	Threshold       float64
	ThresholdSource string
	Spans           []SpanEvidence
	FaithStatus     string
	FaithDelta      float64
}

// SpanEvidence 证据片段
type SpanEvidence struct {
	Start   int
	End     int
	Score   float64
	Snippet string
}
