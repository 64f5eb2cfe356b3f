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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2diag/pkg/errors"
	"text2diag/pkg/evidence"
)

func validOutput() Output {
	pFull, pMasked := 0.71, 0.12
	return Output{
		Version:     Version,
		ExampleID:   "gen_0123456789ab",
		ModelInfo:   ModelInfo{ModelName: "reference-mlp", Checkpoint: "weights.json", MaxLen: 64, WindowSize: 64},
		Calibration: Calibration{Method: "temperature_scaling", Temperature: 1.0, Timestamp: "2026-01-01T00:00:00Z"},
		Labels: []Label{
			{
				Name: "depression", ProbCalibrated: 0.71, Decision: 1, ThresholdUsed: 0.5, ThresholdSource: "global",
				EvidenceSpans: []EvidenceSpan{{Start: 4, End: 14, Score: 0.5, Snippet: "depression"}},
				Faithfulness:  Faithfulness{Delta: 0.59, IsFaithful: true, Status: "passed", PFull: &pFull, PMasked: &pMasked},
				EvidenceMeta:  EvidenceMeta{Method: "integrated_gradients", IGSteps: 16},
			},
			{
				Name: "anxiety", ProbCalibrated: 0.12, Decision: 0, ThresholdUsed: 0.5, ThresholdSource: "default",
				EvidenceSpans: []EvidenceSpan{},
				Faithfulness:  Faithfulness{Status: "not_requested"},
				EvidenceMeta:  EvidenceMeta{Method: "integrated_gradients"},
			},
		},
		Abstain: Abstain{Reasons: []string{}},
		Meta:    Meta{CreatedAt: "2026-01-01T00:00:00Z", RunID: "run-1"},
	}
}

func TestValidate_ValidRecord(t *testing.T) {
	assert.Empty(t, Validate(ToDocument(validOutput())))

	out, rep := Finalize(validOutput())
	assert.True(t, rep.OK())
	assert.False(t, rep.Repaired)
	assert.Zero(t, rep.Rounds)
	assert.NoError(t, rep.Err())
	assert.False(t, out.Abstain.IsAbstain)
	assert.Equal(t, validOutput().Labels[0].Faithfulness, out.Labels[0].Faithfulness)
}

func TestValidate_MissingTopLevelKeys(t *testing.T) {
	doc := ToDocument(validOutput())
	delete(doc, "meta")
	delete(doc, "labels")
	assert.Equal(t, []string{"missing top-level key: labels", "missing top-level key: meta"}, Validate(doc))
}

func TestFinalize_ProbAndDecisionInvariant(t *testing.T) {
	o := validOutput()
	o.Labels[0].ProbCalibrated = 1.7
	o.Labels[1].ProbCalibrated = -0.2

	out, rep := Finalize(o)
	assert.False(t, rep.OK())
	assert.True(t, rep.Repaired)
	assert.Empty(t, rep.Residual)
	assert.False(t, out.Abstain.IsAbstain)
	for _, l := range out.Labels {
		assert.GreaterOrEqual(t, l.ProbCalibrated, 0.0)
		assert.LessOrEqual(t, l.ProbCalibrated, 1.0)
		assert.Contains(t, []int{0, 1}, l.Decision)
	}
	assert.Equal(t, 1.0, out.Labels[0].ProbCalibrated)
	assert.Equal(t, 0.0, out.Labels[1].ProbCalibrated)
}

func TestRepair_DropsInvalidSpansAndTruncates(t *testing.T) {
	o := validOutput()
	long := strings.Repeat("é", 250)
	o.Labels[0].EvidenceSpans = []EvidenceSpan{
		{Start: 10, End: 4, Score: 0.3, Snippet: "bad"},
		{Start: 0, End: 250, Score: 0.2, Snippet: long},
	}
	doc := ToDocument(o)
	v := Validate(doc)
	assert.Contains(t, v, "label 0 span 0 end < start")
	assert.Contains(t, v, "label 0 span 1 snippet too long (>200 chars)")

	fixed, changed := Repair(doc)
	require.True(t, changed)
	assert.Empty(t, Validate(fixed))
	// 原文档不受影响
	assert.Len(t, doc["labels"].([]any)[0].(map[string]any)["evidence_spans"], 2)

	out := FromDocument(fixed)
	require.Len(t, out.Labels[0].EvidenceSpans, 1)
	snippet := out.Labels[0].EvidenceSpans[0].Snippet
	assert.Equal(t, 200, len([]rune(snippet)))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}

func TestRepair_CoercesBoolDecision(t *testing.T) {
	doc := ToDocument(validOutput())
	lbl := doc["labels"].([]any)[0].(map[string]any)
	lbl["decision"] = true
	lbl2 := doc["labels"].([]any)[1].(map[string]any)
	lbl2["decision"] = 0.0

	assert.Contains(t, Validate(doc), "label 0 decision must be 0 or 1, got true")
	fixed, changed := Repair(doc)
	require.True(t, changed)
	assert.Empty(t, Validate(fixed))
	assert.Equal(t, 1, fixed["labels"].([]any)[0].(map[string]any)["decision"])
	assert.Equal(t, 0, fixed["labels"].([]any)[1].(map[string]any)["decision"])
}

func TestFinalize_NaNProbRemovesLabel(t *testing.T) {
	o := validOutput()
	o.Labels[1].ProbCalibrated = math.NaN()

	out, rep := Finalize(o)
	require.Len(t, rep.Residual, 1)
	assert.True(t, strings.HasPrefix(rep.Residual[0], "label 1 prob_calibrated out of range"))
	assert.Equal(t, []string{"anxiety"}, rep.DroppedLabels)

	require.Len(t, out.Labels, 1)
	assert.Equal(t, "depression", out.Labels[0].Name)
	assert.True(t, out.Abstain.IsAbstain)
	assert.Contains(t, out.Abstain.Reasons, ReasonPrefix+rep.Residual[0])
	assert.Contains(t, out.Abstain.Reasons, "contract error: label anxiety removed from record")
	assert.Empty(t, Validate(ToDocument(out)))

	var cv *errors.ContractViolation
	require.True(t, errors.As(rep.Err(), &cv))
	assert.True(t, errors.Is(rep.Err(), errors.ErrContractViolation))
}

func TestFinalize_KeepsGraphs(t *testing.T) {
	o := validOutput()
	g := &evidence.DependencyGraph{Nodes: []string{"anxiety", "depression"}, Edges: []evidence.WeightedEdge{{Src: "depression", Dst: "anxiety", Weight: 0.42}}, IsAcyclic: true}
	o.DependencyGraph = g
	o.DependencyGraphTopK = g
	o.ExplanationGraph = evidence.NewBuilder().BuildExplanationGraph(o.ExplanationInput())

	out, _ := Finalize(o)
	require.NotNil(t, out.DependencyGraph)
	require.NotNil(t, out.ExplanationGraph)
	assert.Nil(t, out.DependencyGraphActive)
	assert.Equal(t, g.Edges, out.DependencyGraph.Edges)

	out.DependencyGraph.Edges[0].Weight = 9
	assert.Equal(t, 0.42, g.Edges[0].Weight)
}

func TestDegrade_RebuildsSkeleton(t *testing.T) {
	doc := Document{"version": "v0", "labels": []any{"oops"}}
	fixed, dropped := degrade(doc)
	assert.Equal(t, []string{"#0"}, dropped)
	assert.Empty(t, Validate(fixed))
	assert.Equal(t, true, fixed["abstain"].(map[string]any)["is_abstain"])
}

func TestOutput_CloneIsIndependent(t *testing.T) {
	o := validOutput()
	c := o.Clone()
	c.Labels[0].EvidenceSpans[0].Snippet = "changed"
	*c.Labels[0].Faithfulness.PFull = 0
	c.Abstain.Reasons = append(c.Abstain.Reasons, "x")

	assert.Equal(t, "depression", o.Labels[0].EvidenceSpans[0].Snippet)
	assert.Equal(t, 0.71, *o.Labels[0].Faithfulness.PFull)
	assert.Empty(t, o.Abstain.Reasons)
}

func TestValidateJSON(t *testing.T) {
	data, err := json.Marshal(validOutput())
	require.NoError(t, err)
	assert.NoError(t, ValidateJSON(data))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["labels"].([]any)[0].(map[string]any)["decision"] = 2
	bad, err := json.Marshal(raw)
	require.NoError(t, err)

	err = ValidateJSON(bad)
	cv, ok := errors.GetContractViolation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"label 0 decision must be 0 or 1, got 2"}, cv.Violations)

	assert.True(t, errors.Is(ValidateJSON([]byte("{")), errors.ErrInvalidArg))
	assert.True(t, errors.Is(ValidateJSON([]byte("null")), errors.ErrInvalidArg))
}
