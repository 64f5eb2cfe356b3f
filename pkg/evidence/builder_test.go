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
	"encoding/json"
	"strings"
	"testing"
)

func sampleInput() ExplanationInput {
	return ExplanationInput{
		CalibrationMethod: "temperature_scaling",
		Temperature:       1.3,
		Labels: []LabelEvidence{
			{
				Name: "depression", Prob: 0.71, Decision: 1, Threshold: 0.5, ThresholdSource: "global",
				Spans:       []SpanEvidence{{Start: 27, End: 37, Score: 0.42, Snippet: "depression"}},
				FaithStatus: "passed", FaithDelta: 0.59,
			},
			{Name: "anxiety", Prob: 0.12, Decision: 0, Threshold: 0.5, ThresholdSource: "global", FaithStatus: "skipped_no_spans"},
			{Name: "ptsd", Prob: 0.05, Decision: 0, Threshold: 0.3, ThresholdSource: "per_label"},
		},
	}
}

// TestBuildExplanationGraph_Typed 节点与边的类型、ID 与方向
func TestBuildExplanationGraph_Typed(t *testing.T) {
	g := NewBuilder().BuildExplanationGraph(sampleInput())
	if g.Version != ExplanationGraphVersion || !g.IsAcyclic {
		t.Fatalf("unexpected header: %+v", g)
	}

	ids := make(map[string]EvidenceNode)
	for _, n := range g.Nodes {
		if _, dup := ids[n.ID]; dup {
			t.Errorf("duplicate node id %s", n.ID)
		}
		ids[n.ID] = n
	}
	sum := sha256.Sum256([]byte("depression:27:37"))
	spanID := "span:" + hex.EncodeToString(sum[:])[:8]
	for _, want := range []string{
		"rule:temperature", "rule:threshold:global", "rule:threshold:per_label",
		"label:depression", "label:anxiety", "label:ptsd", spanID,
		"faith:depression", "faith:anxiety", "faith:ptsd",
	} {
		if _, ok := ids[want]; !ok {
			t.Errorf("missing node %s", want)
		}
	}
	if len(g.Nodes) != 10 {
		t.Errorf("expected 10 nodes, got %d", len(g.Nodes))
	}
	if ids["faith:ptsd"].Metadata["status"] != "unknown" {
		t.Errorf("empty status should be reported as unknown: %v", ids["faith:ptsd"].Metadata)
	}

	counts := map[Relation]int{}
	for _, e := range g.Edges {
		counts[e.Relation]++
		switch e.Relation {
		case RelationGoverns:
			if !strings.HasPrefix(e.From, "rule:") || !strings.HasPrefix(e.To, "label:") {
				t.Errorf("bad governs edge %+v", e)
			}
		case RelationSupports:
			if e.From != spanID || e.To != "label:depression" || e.Weight == nil || *e.Weight != 0.42 {
				t.Errorf("bad supports edge %+v", e)
			}
		case RelationVerifiedBy:
			if !strings.HasPrefix(e.From, "label:") || !strings.HasPrefix(e.To, "faith:") {
				t.Errorf("bad verified_by edge %+v", e)
			}
		}
	}
	if counts[RelationGoverns] != 3 || counts[RelationSupports] != 1 || counts[RelationVerifiedBy] != 3 {
		t.Errorf("edge counts: %v", counts)
	}

	var nodes []string
	var edges []WeightedEdge
	for _, n := range g.Nodes {
		nodes = append(nodes, n.ID)
	}
	for _, e := range g.Edges {
		edges = append(edges, WeightedEdge{Src: e.From, Dst: e.To})
	}
	if HasCycle(nodes, edges) {
		t.Error("explanation graph must be acyclic")
	}
}

func TestExplanationGraph_CloneIsIndependent(t *testing.T) {
	g := NewBuilder().BuildExplanationGraph(sampleInput())
	c := g.Clone()
	c.Nodes[0].Metadata["value"] = 99.0
	*c.Edges[1].Weight = -1
	if g.Nodes[0].Metadata["value"] != 1.3 {
		t.Error("clone shares metadata map")
	}
	for _, e := range g.Edges {
		if e.Weight != nil && *e.Weight == -1 {
			t.Error("clone shares edge weight")
		}
	}
	var nilGraph *ExplanationGraph
	if nilGraph.Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestSpanNodeID_Deterministic(t *testing.T) {
	a := SpanNodeID("ptsd", 1, 5)
	if a != SpanNodeID("ptsd", 1, 5) || a == SpanNodeID("ptsd", 1, 6) || len(a) != len("span:")+8 {
		t.Errorf("unexpected span id %s", a)
	}
}

func TestWeightedEdge_JSON(t *testing.T) {
	g := DependencyGraph{
		Nodes:     []string{"a", "b"},
		Edges:     []WeightedEdge{{Src: "a", Dst: "b", Weight: 0.25}},
		IsAcyclic: true,
		Dropped:   []WeightedEdge{{Src: "b", Dst: "a", Weight: 0.1}},
	}
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"nodes":["a","b"],"edges":[["a","b",0.25]],"is_acyclic":true}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
	var back DependencyGraph
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Edges[0] != g.Edges[0] {
		t.Errorf("round trip edge: %+v", back.Edges[0])
	}
	if err := json.Unmarshal([]byte(`{"edges":[["a","b"]]}`), &back); err == nil {
		t.Error("expected error for 2-item edge")
	}
}
