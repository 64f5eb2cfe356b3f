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

package attribution

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2diag/internal/model"
	"text2diag/internal/model/modeltest"
	"text2diag/pkg/errors"
)

const depressionText = "I have been diagnosed with depression and it's been hard"

func TestGradientXInput_KeywordDominates(t *testing.T) {
	m, tok := modeltest.New()
	label := model.LabelIndex(m, "depression")

	attrs, err := GradientXInput(context.Background(), m, tok, depressionText, label)
	require.NoError(t, err)
	enc := tok.Encode(depressionText)
	require.Len(t, attrs, enc.Len())

	h := math.Tanh(2)
	want := 2.0 * 3 * (1 - h*h)
	for i, a := range attrs {
		assert.Equal(t, i, a.Index)
		assert.Equal(t, enc.Offsets[i][0], a.Start)
		assert.Equal(t, enc.Offsets[i][1], a.End)
		if a.Token == "depression" {
			assert.InDelta(t, want, a.Score, 1e-9)
			assert.Equal(t, "depression", depressionText[a.Start:a.End])
		} else {
			assert.InDelta(t, 0.0, a.Score, 1e-12, "token %q", a.Token)
		}
	}
}

func TestIntegratedGradients_Completeness(t *testing.T) {
	m, tok := modeltest.New()
	label := model.LabelIndex(m, "depression")

	attrs, err := IntegratedGradients(context.Background(), m, tok, depressionText, label, 64)
	require.NoError(t, err)

	var total float64
	for _, a := range attrs {
		total += a.Score
	}
	// Σ IG ≈ logit(x) − logit(baseline)
	assert.InDelta(t, 3*math.Tanh(2), total, 0.05)
}

func TestIntegratedGradients_StepsValidated(t *testing.T) {
	m, tok := modeltest.New()
	_, err := IntegratedGradients(context.Background(), m, tok, depressionText, 0, 1)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
}

func TestCompute_Dispatch(t *testing.T) {
	m, tok := modeltest.New()
	label := model.LabelIndex(m, "depression")
	ctx := context.Background()

	gx, err := Compute(ctx, m, tok, depressionText, label, Options{})
	require.NoError(t, err)
	ig, err := Compute(ctx, m, tok, depressionText, label, Options{Method: MethodIntegratedGradients})
	require.NoError(t, err)
	require.Equal(t, len(gx), len(ig))

	_, err = Compute(ctx, m, tok, depressionText, label, Options{Method: "lime"})
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))

	_, err = Compute(ctx, m, tok, depressionText, 42, Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
}

type forwardOnly struct{ model.Classifier }

type badGradients struct{ model.Differentiable }

func (b badGradients) Gradients(ctx context.Context, batch [][][]float64, mask []int, label int) ([][]float64, [][][]float64, error) {
	return nil, nil, nil
}

func TestCompute_ComputationErrors(t *testing.T) {
	m, tok := modeltest.New()
	ctx := context.Background()

	_, err := Compute(ctx, forwardOnly{m}, tok, depressionText, 0, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsComputationError(err))
	assert.True(t, errors.Is(err, errors.ErrComputation))

	_, err = Compute(ctx, badGradients{m}, tok, depressionText, 3, Options{})
	var ce *errors.ComputationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "attribution", ce.Stage)
	assert.Equal(t, "depression", ce.Label)
}

func TestCompute_Cancelled(t *testing.T) {
	m, tok := modeltest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, m, tok, depressionText, 0, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.IsComputationError(err))
}
