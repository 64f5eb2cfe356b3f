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

package faithfulness

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2diag/internal/explain/attribution"
	"text2diag/internal/explain/spans"
	"text2diag/internal/model"
	"text2diag/internal/model/modeltest"
)

func TestRandomSpans(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ref := []spans.Span{{Start: 3, End: 13}, {Start: 20, End: 24}}
	for i := 0; i < 100; i++ {
		got := RandomSpans(rng, 50, ref)
		require.Len(t, got, 2)
		for j, s := range got {
			assert.Equal(t, ref[j].End-ref[j].Start, s.End-s.Start)
			assert.GreaterOrEqual(t, s.Start, 0)
			assert.LessOrEqual(t, s.End, 50)
		}
	}

	got := RandomSpans(rng, 5, []spans.Span{{Start: 0, End: 30}})
	assert.Equal(t, spans.Span{Start: 0, End: 5, Snippet: "[RANDOM]"}, got[0])
	assert.Nil(t, RandomSpans(rng, 5, nil))
}

// 证据片段的平均遮挡效应应高于同长度随机片段
func TestControls_EvidenceDominatesRandom(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(m, tok, DefaultMinDelta)
	c := NewControls(v, rand.New(rand.NewSource(42)), 1.0)
	label := model.LabelIndex(m, "depression")
	ctx := context.Background()

	texts := []string{
		"i have been diagnosed with depression and it's been hard at work every night lately",
		"lately i feel so tired at work and every night it's really hard, my doctor said depression",
		"my depression is really hard to explain to my family and friends at work every day",
		"every night i lie awake and think about it, the doctor called it depression last week",
		"it's been hard, i have been depressed at work and my sleep is broken every single night",
		"i am so hopeless lately and nothing at work or at home really helps with the weight of it",
		"the weather is nice today but depression makes it really hard to enjoy any of it at all",
		"i have been diagnosed with depression at the clinic and i am waiting for therapy to start",
	}

	var results []ControlResult
	for _, text := range texts {
		attrs, err := attribution.GradientXInput(ctx, m, tok, text, label)
		require.NoError(t, err)
		ss := spans.Select(attrs, text, spans.Options{})
		require.NotEmpty(t, ss, text)

		res, err := c.Run(ctx, text, label, ss)
		require.NoError(t, err)
		assert.Equal(t, "depression", res.Label)
		assert.NotEqual(t, "depression", res.ShuffledLabel)
		assert.True(t, res.A.IsFaithful, text)
		// 其他 label 的 logit 与 depression 关键词无关
		assert.InDelta(t, 0.0, res.C.Delta, 1e-9)
		assert.Len(t, res.SpanDeltas, len(ss))
		results = append(results, res)
	}

	sum := Summarize(results, DefaultMinDelta)
	assert.Equal(t, len(texts), sum.N)
	assert.Greater(t, sum.AMean, sum.BMean)
	assert.Greater(t, sum.DiffABMean, 0.0)
	assert.Greater(t, sum.DiffACMean, 0.0)
	assert.Equal(t, 1.0, sum.APassRate)
	assert.Greater(t, sum.DominanceRate, 0.0)
}

type singleLabel struct{ model.Classifier }

func (singleLabel) Labels() []string { return []string{"adhd"} }
func (s singleLabel) Forward(ctx context.Context, enc model.Encoding) ([]float64, error) {
	logits, err := s.Classifier.Forward(ctx, enc)
	if err != nil {
		return nil, err
	}
	return logits[:1], nil
}

func TestControls_SingleLabelModel(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(singleLabel{m}, tok, DefaultMinDelta)
	c := NewControls(v, rand.New(rand.NewSource(1)), 1.0)
	text := "adhd makes it hard to focus"
	res, err := c.Run(context.Background(), text, 0, []spans.Span{spanOf(text, "adhd")})
	require.NoError(t, err)
	assert.Equal(t, "N/A", res.ShuffledLabel)
	assert.Equal(t, 0.0, res.C.Delta)
	assert.Equal(t, StatusFailedLowDelta, res.C.Status)
}

func TestSummarize(t *testing.T) {
	results := []ControlResult{
		{A: Result{Delta: 0.5}, B: Result{Delta: 0.1}, C: Result{Delta: 0.0}},
		{A: Result{Delta: 0.02}, B: Result{Delta: 0.04}, C: Result{Delta: 0.02}},
	}
	s := Summarize(results, 0.03)
	assert.Equal(t, 2, s.N)
	assert.InDelta(t, 0.26, s.AMean, 1e-12)
	assert.InDelta(t, 0.07, s.BMean, 1e-12)
	assert.InDelta(t, 0.01, s.CMean, 1e-12)
	assert.InDelta(t, 0.19, s.DiffABMean, 1e-12)
	assert.InDelta(t, 0.25, s.DiffACMean, 1e-12)
	assert.Equal(t, 0.5, s.APassRate)
	assert.Equal(t, 1.0, s.BPassRate)
	assert.Equal(t, 0.5, s.DominanceRate)

	assert.Equal(t, Summary{}, Summarize(nil, 0.03))
}
