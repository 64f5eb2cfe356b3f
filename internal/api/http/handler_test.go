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

package http

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2diag/internal/api/http/middleware"
	"text2diag/internal/contract"
	"text2diag/internal/decision"
	"text2diag/internal/model/modeltest"
	"text2diag/internal/pipeline"
)

func newTestServer(t *testing.T, mwOpts ...middleware.Option) *server.Hertz {
	t.Helper()
	m, tok := modeltest.New()
	opts := pipeline.DefaultOptions()
	opts.ModelName = m.Name()
	p, err := pipeline.NewPredictor(m, tok, decision.NewThresholdSource(map[string]float64{"global": 0.5}), nil, opts)
	require.NoError(t, err)
	h := NewHandler(p, pipeline.NewBatch(p, 2), func() []string { return []string{m.Name()} }, nil)
	return NewRouter(h, middleware.NewMiddleware(mwOpts...)).Build(":0")
}

func perform(s *server.Hertz, method, path, body string) (int, []byte) {
	w := ut.PerformRequest(s.Engine, method, path,
		&ut.Body{Body: bytes.NewReader([]byte(body)), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	return resp.StatusCode(), resp.Body()
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	status, body := perform(s, "GET", "/api/health", "")
	if status != 200 {
		t.Errorf("HealthCheck status: got %d", status)
	}
	if !bytes.Contains(body, []byte(`"status":"ok"`)) {
		t.Errorf("HealthCheck body: %s", body)
	}
}

func TestListModels(t *testing.T) {
	s := newTestServer(t)
	status, body := perform(s, "GET", "/api/models", "")
	require.Equal(t, 200, status)
	var resp struct {
		Models          []string `json:"models"`
		Labels          []string `json:"labels"`
		ContractVersion string   `json:"contract_version"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, []string{"text2diag-fixture"}, resp.Models)
	assert.Equal(t, modeltest.Labels, resp.Labels)
	assert.Equal(t, contract.Version, resp.ContractVersion)
}

func TestPredict(t *testing.T) {
	s := newTestServer(t)
	status, body := perform(s, "POST", "/api/predict", `{"example_id":"r1","text":"i have been diagnosed with depression and it's hard"}`)
	require.Equal(t, 200, status, "body: %s", body)

	var out contract.Output
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "r1", out.ExampleID)
	assert.Len(t, out.Labels, len(modeltest.Labels))
	assert.False(t, out.Abstain.IsAbstain)
	assert.NoError(t, contract.ValidateJSON(body))
}

func TestPredict_BadRequest(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []string{`{"example_id":"x"}`, `not json`} {
		status, resp := perform(s, "POST", "/api/predict", body)
		assert.Equal(t, 400, status, "body %q -> %s", body, resp)
		assert.Contains(t, string(resp), `"error"`)
	}
}

func TestPredictBatch(t *testing.T) {
	s := newTestServer(t)
	status, body := perform(s, "POST", "/api/predict/batch",
		`{"examples":[{"example_id":"a","text":"panic and anxiety"},{"example_id":"b","text":""},{"example_id":"c","text":"manic"}]}`)
	require.Equal(t, 200, status, "body: %s", body)

	var resp struct {
		Records []contract.Output `json:"records"`
		Total   int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, 3, resp.Total)
	assert.Equal(t, "a", resp.Records[0].ExampleID)
	assert.Equal(t, "b", resp.Records[1].ExampleID)
	assert.True(t, resp.Records[1].Abstain.IsAbstain)
	assert.Equal(t, "c", resp.Records[2].ExampleID)

	status, _ = perform(s, "POST", "/api/predict/batch", `{"examples":[]}`)
	assert.Equal(t, 400, status)

	var many strings.Builder
	many.WriteString(`{"examples":[`)
	for i := 0; i <= MaxBatchSize; i++ {
		if i > 0 {
			many.WriteString(",")
		}
		many.WriteString(`{"text":"x"}`)
	}
	many.WriteString("]}")
	status, _ = perform(s, "POST", "/api/predict/batch", many.String())
	assert.Equal(t, 400, status)
}

func TestValidate(t *testing.T) {
	s := newTestServer(t)
	_, record := perform(s, "POST", "/api/predict", `{"text":"so anxious lately"}`)

	status, body := perform(s, "POST", "/api/validate", string(record))
	assert.Equal(t, 200, status, "body: %s", body)
	assert.Contains(t, string(body), `"valid":true`)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(record, &doc))
	doc["labels"].([]any)[0].(map[string]any)["decision"] = 2
	broken, err := json.Marshal(doc)
	require.NoError(t, err)
	status, body = perform(s, "POST", "/api/validate", string(broken))
	assert.Equal(t, 422, status)
	assert.Contains(t, string(body), "label 0 decision must be 0 or 1, got 2")

	status, _ = perform(s, "POST", "/api/validate", "{")
	assert.Equal(t, 400, status)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	perform(s, "POST", "/api/predict", `{"text":"hopeless"}`)
	status, body := perform(s, "GET", "/metrics", "")
	require.Equal(t, 200, status)
	assert.Contains(t, string(body), "text2diag_example_total")
	assert.Contains(t, string(body), "text2diag_http_requests_total")
}

func TestMetricsDisabled(t *testing.T) {
	m, tok := modeltest.New()
	p, err := pipeline.NewPredictor(m, tok, decision.NewThresholdSource(nil), nil, pipeline.DefaultOptions())
	require.NoError(t, err)
	r := NewRouter(NewHandler(p, pipeline.NewBatch(p, 1), nil, nil), middleware.NewMiddleware())
	r.SetMetricsEnabled(false)
	s := r.Build(":0")

	status, _ := perform(s, "GET", "/metrics", "")
	assert.Equal(t, 404, status)
	status, _ = perform(s, "GET", "/api/health", "")
	assert.Equal(t, 200, status)
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t)
	w := ut.PerformRequest(s.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "*", string(resp.Header.Peek("Access-Control-Allow-Origin")))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, middleware.WithRateLimit(0.001, 1))
	status, _ := perform(s, "POST", "/api/predict", `{"text":"focus"}`)
	assert.Equal(t, 200, status)
	status, body := perform(s, "POST", "/api/predict", `{"text":"focus"}`)
	assert.Equal(t, 429, status)
	assert.Contains(t, string(body), "rate limit exceeded")

	status, _ = perform(s, "GET", "/api/health", "")
	assert.Equal(t, 200, status)
}
