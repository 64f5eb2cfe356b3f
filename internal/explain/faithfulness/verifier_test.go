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
	"math"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2diag/internal/explain/spans"
	"text2diag/internal/model"
	"text2diag/internal/model/modeltest"
	"text2diag/pkg/errors"
)

const depressionText = "I have been diagnosed with depression and it's been hard"

func spanOf(text, word string) spans.Span {
	i := strings.Index(text, word)
	return spans.Span{Start: i, End: i + len(word)}
}

func TestVerify_DepressionPasses(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(m, tok, DefaultMinDelta)
	label := model.LabelIndex(m, "depression")

	res, err := v.Verify(context.Background(), depressionText, []spans.Span{spanOf(depressionText, "depression")}, label, 1.0)
	require.NoError(t, err)

	pFull := model.Sigmoid(3*math.Tanh(2) - 2)
	pMasked := model.Sigmoid(-2)
	assert.InDelta(t, pFull, res.PFull, 1e-4)
	assert.InDelta(t, pMasked, res.PMasked, 1e-4)
	assert.InDelta(t, pFull-pMasked, res.Delta, 1e-4)
	assert.Equal(t, StatusPassed, res.Status)
	assert.True(t, res.IsFaithful)
	assert.Empty(t, res.Flag)
}

func TestVerify_NegativeDeltaIsSuspicious(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(m, tok, DefaultMinDelta)
	text := "depression but i am fine"
	res, err := v.Verify(context.Background(), text, []spans.Span{spanOf(text, "fine")}, model.LabelIndex(m, "depression"), 1.0)
	require.NoError(t, err)
	assert.Less(t, res.Delta, 0.0)
	assert.Equal(t, StatusSuspiciousNegativeDelta, res.Status)
	assert.False(t, res.IsFaithful)
	assert.Equal(t, FlagNegativeDelta, res.Flag)
}

func TestVerify_LowDeltaFails(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(m, tok, DefaultMinDelta)
	res, err := v.Verify(context.Background(), depressionText, []spans.Span{spanOf(depressionText, "hard")}, model.LabelIndex(m, "depression"), 1.0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Delta)
	assert.Equal(t, StatusFailedLowDelta, res.Status)
	assert.False(t, res.IsFaithful)
}

func TestVerify_Pure(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(m, tok, DefaultMinDelta)
	ss := []spans.Span{spanOf(depressionText, "depression"), {Start: 0, End: 6}}
	first, err := v.Verify(context.Background(), depressionText, ss, 3, 1.5)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := v.Verify(context.Background(), depressionText, ss, 3, 1.5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestVerify_InvalidArgs(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(m, tok, -1)
	assert.Equal(t, DefaultMinDelta, v.MinDelta())

	_, err := v.Verify(context.Background(), depressionText, nil, 0, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
	_, err = v.Verify(context.Background(), depressionText, nil, 17, 1)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
}

type brokenForward struct{ model.Classifier }

func (brokenForward) Forward(ctx context.Context, enc model.Encoding) ([]float64, error) {
	return []float64{1}, nil
}

func TestVerify_ForwardShapeIsComputationError(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(brokenForward{m}, tok, DefaultMinDelta)
	_, err := v.Verify(context.Background(), depressionText, nil, 0, 1)
	var ce *errors.ComputationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "faithfulness", ce.Stage)
	assert.Equal(t, "adhd", ce.Label)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		delta  float64
		status Status
		ok     bool
		flag   string
	}{
		{0.5, StatusPassed, true, ""},
		{0.03, StatusPassed, true, ""},
		{0.0299, StatusFailedLowDelta, false, ""},
		{0, StatusFailedLowDelta, false, ""},
		{-0.01, StatusSuspiciousNegativeDelta, false, FlagNegativeDelta},
	}
	for _, tt := range tests {
		status, ok, flag := Classify(tt.delta, DefaultMinDelta)
		assert.Equal(t, tt.status, status, "delta=%v", tt.delta)
		assert.Equal(t, tt.ok, ok, "delta=%v", tt.delta)
		assert.Equal(t, tt.flag, flag, "delta=%v", tt.delta)
	}
}

func TestMaskText_PreservesLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	texts := []string{
		depressionText,
		"",
		"a",
		"naïve café — résumé 日本語 text",
		strings.Repeat("line\n", 40),
	}
	for _, text := range texts {
		for trial := 0; trial < 200; trial++ {
			n := rng.Intn(4)
			ss := make([]spans.Span, n)
			for i := range ss {
				a := rng.Intn(len(text)+10) - 5
				b := a + rng.Intn(20) - 3
				ss[i] = spans.Span{Start: a, End: b}
			}
			masked := MaskText(text, ss)
			require.Equal(t, len(text), len(masked))
			require.True(t, utf8.ValidString(masked) || !utf8.ValidString(text))
		}
	}
}

func TestMaskText_ReplacesUnion(t *testing.T) {
	text := "abcdefghij"
	got := MaskText(text, []spans.Span{{Start: 1, End: 3}, {Start: 2, End: 5}, {Start: 8, End: 100}})
	assert.Equal(t, "a    fgh  ", got)
	assert.Equal(t, text, MaskText(text, nil))
	assert.Equal(t, text, MaskText(text, []spans.Span{{Start: 5, End: 2}}))
}

func TestSpanDeltas(t *testing.T) {
	m, tok := modeltest.New()
	v := NewVerifier(m, tok, DefaultMinDelta)
	text := "hopeless and depressed"
	ss := []spans.Span{spanOf(text, "hopeless"), spanOf(text, "and")}
	deltas, err := v.SpanDeltas(context.Background(), text, ss, model.LabelIndex(m, "depression"), 1)
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.Greater(t, deltas[0], 0.0)
	assert.InDelta(t, 0.0, deltas[1], 1e-12)
}
