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
	"os"

	"gopkg.in/yaml.v3"

	"text2diag/pkg/errors"
)

// Edge 先验边：Src 常伴随 Dst（共病方向）
type Edge struct {
	Src string `yaml:"src" json:"src"`
	Dst string `yaml:"dst" json:"dst"`
}

// Priors 不可变的先验边表，构造后只读，显式传递
type Priors struct {
	edges []Edge
}

// defaultEdges 默认共病先验
func defaultEdges() []Edge {
	return []Edge{
		{"ptsd", "depression"},
		{"ptsd", "anxiety"},
		{"adhd", "anxiety"},
		{"adhd", "depression"},
		{"depression", "anxiety"},
		{"depression", "suicidewatch"},
		{"bipolar", "depression"},
		{"bipolar", "mania"},
		{"ocd", "anxiety"},
	}
}

// DefaultPriors 默认先验表
func DefaultPriors() Priors {
	return Priors{edges: defaultEdges()}
}

// NewPriors 由边列表构建；重复边去重，保留首次出现的顺序
func NewPriors(edges []Edge) Priors {
	seen := make(map[Edge]struct{}, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return Priors{edges: out}
}

// Edges 返回副本
func (p Priors) Edges() []Edge {
	return append([]Edge(nil), p.edges...)
}

// Len 边数
func (p Priors) Len() int { return len(p.edges) }

type priorsFile struct {
	Edges []Edge `yaml:"edges"`
}

// LoadPriors 读取 YAML 先验表：
//
//	edges:
//	  - {src: ptsd, dst: depression}
func LoadPriors(path string) (Priors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Priors{}, errors.Wrapf(errors.ErrResourceUnavailable, "read priors %s: %v", path, err)
	}
	var f priorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Priors{}, errors.Wrapf(errors.ErrResourceUnavailable, "parse priors %s: %v", path, err)
	}
	for i, e := range f.Edges {
		if e.Src == "" || e.Dst == "" {
			return Priors{}, errors.Wrapf(errors.ErrResourceUnavailable, "priors %s: edge %d has empty endpoint", path, i)
		}
	}
	return NewPriors(f.Edges), nil
}
