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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2diag/pkg/errors"
)

func TestResolve_Provenance(t *testing.T) {
	g := 0.45
	ts := ThresholdSource{PerLabel: map[string]float64{"depression": 0.6}, Global: &g}

	th, src := ts.Resolve("depression")
	assert.Equal(t, 0.6, th)
	assert.Equal(t, ProvenancePerLabel, src)

	th, src = ts.Resolve("anxiety")
	assert.Equal(t, 0.45, th)
	assert.Equal(t, ProvenanceGlobal, src)

	th, src = ThresholdSource{}.Resolve("anxiety")
	assert.Equal(t, DefaultThreshold, th)
	assert.Equal(t, ProvenanceDefault, src)
}

func TestResolve_ExplicitZeroDefault(t *testing.T) {
	zero := 0.0
	ts := ThresholdSource{Default: &zero}
	th, src := ts.Resolve("anxiety")
	assert.Equal(t, 0.0, th)
	assert.Equal(t, ProvenanceDefault, src)
	assert.Equal(t, 1, Decide(0, th))
	assert.NoError(t, ts.Validate())

	m := NewThresholdSource(nil).Merge(ts)
	th, _ = m.Resolve("anxiety")
	assert.Equal(t, 0.0, th)

	bad := 1.5
	assert.Error(t, ThresholdSource{Default: &bad}.Validate())
}

func TestDecide(t *testing.T) {
	assert.Equal(t, 1, Decide(0.5, 0.5))
	assert.Equal(t, 0, Decide(0.4999, 0.5))
	assert.Equal(t, 1, Decide(1, 0))
	assert.Equal(t, 0, Decide(0, 0.01))
}

func TestLoadThresholds_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "thresholds.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"global": 0.4, "ptsd": 0.3}`), 0644))
	ts, err := LoadThresholds(jsonPath)
	require.NoError(t, err)
	require.NotNil(t, ts.Global)
	assert.Equal(t, 0.4, *ts.Global)
	th, src := ts.Resolve("ptsd")
	assert.Equal(t, 0.3, th)
	assert.Equal(t, ProvenancePerLabel, src)
	_, ok := ts.PerLabel["global"]
	assert.False(t, ok)

	yamlPath := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("adhd: 0.55\n"), 0644))
	ts, err = LoadThresholds(yamlPath)
	require.NoError(t, err)
	assert.Nil(t, ts.Global)
	th, _ = ts.Resolve("adhd")
	assert.Equal(t, 0.55, th)
}

func TestLoadThresholds_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadThresholds(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, errors.ErrResourceUnavailable))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"adhd": 1.5}`), 0644))
	_, err = LoadThresholds(bad)
	assert.True(t, errors.Is(err, errors.ErrResourceUnavailable))

	garbage := filepath.Join(dir, "garbage.yaml")
	require.NoError(t, os.WriteFile(garbage, []byte("adhd: [1, 2"), 0644))
	_, err = LoadThresholds(garbage)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	g1, g2 := 0.5, 0.35
	base := ThresholdSource{PerLabel: map[string]float64{"a": 0.1, "b": 0.2}, Global: &g1}
	over := ThresholdSource{PerLabel: map[string]float64{"b": 0.9}, Global: &g2}
	m := base.Merge(over)
	assert.Equal(t, map[string]float64{"a": 0.1, "b": 0.9}, m.PerLabel)
	assert.Equal(t, 0.35, *m.Global)

	m = over.Merge(ThresholdSource{})
	assert.Equal(t, 0.35, *m.Global)
}

func TestAbstain_Confident(t *testing.T) {
	state, kinds := DefaultAbstainPolicy().Evaluate(AbstainInput{TextLen: 40, ContractOK: true, Probs: []float64{0.2, 0.71}})
	assert.False(t, state.IsAbstain)
	assert.Empty(t, state.Reasons)
	assert.NotNil(t, state.Reasons)
	assert.Empty(t, kinds)
}

func TestAbstain_AccumulatesAllReasons(t *testing.T) {
	state, kinds := DefaultAbstainPolicy().Evaluate(AbstainInput{TextLen: 0, ContractOK: false, Probs: nil})
	assert.True(t, state.IsAbstain)
	assert.Equal(t, []string{
		"input too short after sanitization (len=0 < 5)",
		"contract validation failed",
		"max confidence 0.0000 < global confidence floor 0.4000",
	}, state.Reasons)
	assert.Equal(t, []Kind{KindShortInput, KindContract, KindLowConfidence}, kinds)
}

func TestAbstain_LowConfidenceOnly(t *testing.T) {
	state, kinds := DefaultAbstainPolicy().Evaluate(AbstainInput{TextLen: 30, ContractOK: true, Probs: []float64{0.12, 0.31, 0.05}})
	assert.True(t, state.IsAbstain)
	assert.Equal(t, []string{"max confidence 0.3100 < global confidence floor 0.4000"}, state.Reasons)
	assert.Equal(t, []Kind{KindLowConfidence}, kinds)

	// 恰好等于下限不弃权
	state, _ = DefaultAbstainPolicy().Evaluate(AbstainInput{TextLen: 30, ContractOK: true, Probs: []float64{0.40}})
	assert.False(t, state.IsAbstain)
}

// TestAbstain_ReasonKeepsFourDecimals 接近下限的概率在原因中不被进位成下限本身
func TestAbstain_ReasonKeepsFourDecimals(t *testing.T) {
	state, _ := DefaultAbstainPolicy().Evaluate(AbstainInput{TextLen: 30, ContractOK: true, Probs: []float64{0.3999}})
	assert.Equal(t, []string{"max confidence 0.3999 < global confidence floor 0.4000"}, state.Reasons)

	// 四舍五入后达到下限，与记录中的概率一致，不弃权
	state, _ = DefaultAbstainPolicy().Evaluate(AbstainInput{TextLen: 30, ContractOK: true, Probs: []float64{0.39996}})
	assert.False(t, state.IsAbstain)
}

func TestAbstainState_Add(t *testing.T) {
	var s AbstainState
	s.Add("contract error: x")
	s.Add("contract error: x")
	assert.True(t, s.IsAbstain)
	assert.Len(t, s.Reasons, 2)
}
