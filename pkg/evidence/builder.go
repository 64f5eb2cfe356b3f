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

package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Builder 解释图构建器
type Builder struct{}

// NewBuilder 创建解释图构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildExplanationGraph 由定稿记录构建解释图
//
// 边只有 rule→label、span→label、label→faithfulness 三种方向，天然无环。
func (b *Builder) BuildExplanationGraph(in ExplanationInput) *ExplanationGraph {
	g := &ExplanationGraph{
		Version: ExplanationGraphVersion,
		Nodes:   []EvidenceNode{},
		Edges:   []GraphEdge{},
	}
	g.Nodes = append(g.Nodes, EvidenceNode{
		Type: EvidenceTypeRule,
		ID:   "rule:temperature",
		Metadata: map[string]any{
			"method": in.CalibrationMethod,
			"value":  in.Temperature,
		},
	})

	seen := map[string]bool{"rule:temperature": true}
	for _, l := range in.Labels {
		labelID := "label:" + l.Name
		g.Nodes = append(g.Nodes, EvidenceNode{
			Type:    EvidenceTypeLabel,
			ID:      labelID,
			Summary: l.Name,
			Metadata: map[string]any{
				"prob":      l.Prob,
				"decision":  l.Decision,
				"threshold": l.Threshold,
			},
		})

		source := l.ThresholdSource
		if source == "" {
			source = "unknown"
		}
		ruleID := "rule:threshold:" + source
		if !seen[ruleID] {
			seen[ruleID] = true
			g.Nodes = append(g.Nodes, EvidenceNode{
				Type: EvidenceTypeRule,
				ID:   ruleID,
				Metadata: map[string]any{
					"method": "thresholding",
					"source": source,
				},
			})
		}
		g.Edges = append(g.Edges, GraphEdge{From: ruleID, To: labelID, Relation: RelationGoverns})

		for _, s := range l.Spans {
			spanID := SpanNodeID(l.Name, s.Start, s.End)
			g.Nodes = append(g.Nodes, EvidenceNode{
				Type:     EvidenceTypeSpan,
				ID:       spanID,
				Summary:  s.Snippet,
				Metadata: map[string]any{"score": s.Score},
			})
			w := s.Score
			g.Edges = append(g.Edges, GraphEdge{From: spanID, To: labelID, Relation: RelationSupports, Weight: &w})
		}

		status := l.FaithStatus
		if status == "" {
			status = "unknown"
		}
		faithID := "faith:" + l.Name
		g.Nodes = append(g.Nodes, EvidenceNode{
			Type: EvidenceTypeFaithfulness,
			ID:   faithID,
			Metadata: map[string]any{
				"status": status,
				"delta":  l.FaithDelta,
			},
		})
		g.Edges = append(g.Edges, GraphEdge{From: labelID, To: faithID, Relation: RelationVerifiedBy})
	}
	g.IsAcyclic = true
	return g
}

// SpanNodeID span:<sha256("name:start:end") 前 8 位>
func SpanNodeID(label string, start, end int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", label, start, end)))
	return "span:" + hex.EncodeToString(sum[:])[:8]
}
