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
	"sort"

	"text2diag/pkg/utils"
)

// DefaultTopK topk 模式的节点数
const DefaultTopK = 3

// ActiveNodes decision=1 的 label
func ActiveNodes(names []string, decisions []int) []string {
	var out []string
	for i, n := range names {
		if i < len(decisions) && decisions[i] == 1 {
			out = append(out, n)
		}
	}
	return out
}

// TopKNodes 按概率降序取前 k 个，同概率按名称
func TopKNodes(probs map[string]float64, k int) []string {
	names := make([]string, 0, len(probs))
	for n := range probs {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if probs[names[i]] != probs[names[j]] {
			return probs[names[i]] > probs[names[j]]
		}
		return names[i] < names[j]
	})
	if k >= 0 && len(names) > k {
		names = names[:k]
	}
	return names
}

// BuildDependencyGraph 在 nodes 上实例化先验边，权重为两端概率均值（4 位），并消除环
func BuildDependencyGraph(priors Priors, nodes []string, probs map[string]float64) DependencyGraph {
	present := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		present[n] = struct{}{}
	}
	sorted := make([]string, 0, len(present))
	for n := range present {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var edges []WeightedEdge
	for _, e := range priors.edges {
		_, okSrc := present[e.Src]
		_, okDst := present[e.Dst]
		if !okSrc || !okDst {
			continue
		}
		edges = append(edges, WeightedEdge{
			Src:    e.Src,
			Dst:    e.Dst,
			Weight: utils.Round4((probs[e.Src] + probs[e.Dst]) / 2),
		})
	}

	kept, dropped := BreakCycles(sorted, edges)
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Src != kept[j].Src {
			return kept[i].Src < kept[j].Src
		}
		return kept[i].Dst < kept[j].Dst
	})
	if kept == nil {
		kept = []WeightedEdge{}
	}
	return DependencyGraph{Nodes: sorted, Edges: kept, IsAcyclic: true, Dropped: dropped}
}

// BreakCycles 存在环时按 (weight 升序, src, dst) 排序并丢弃第一条边，直到无环；不修改输入
func BreakCycles(nodes []string, edges []WeightedEdge) (kept, dropped []WeightedEdge) {
	kept = append([]WeightedEdge(nil), edges...)
	for len(kept) > 0 && HasCycle(nodes, kept) {
		sort.SliceStable(kept, func(i, j int) bool {
			a, b := kept[i], kept[j]
			if a.Weight != b.Weight {
				return a.Weight < b.Weight
			}
			if a.Src != b.Src {
				return a.Src < b.Src
			}
			return a.Dst < b.Dst
		})
		dropped = append(dropped, kept[0])
		kept = kept[1:]
	}
	return kept, dropped
}

// HasCycle DFS（visited + 递归栈）检测有向环
func HasCycle(nodes []string, edges []WeightedEdge) bool {
	adj := make(map[string][]string, len(nodes))
	order := append([]string(nil), nodes...)
	for _, e := range edges {
		if _, ok := adj[e.Src]; !ok {
			order = append(order, e.Src)
		}
		adj[e.Src] = append(adj[e.Src], e.Dst)
	}

	visited := make(map[string]bool)
	stack := make(map[string]bool)
	var visit func(n string) bool
	visit = func(n string) bool {
		if stack[n] {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		stack[n] = true
		for _, next := range adj[n] {
			if visit(next) {
				return true
			}
		}
		stack[n] = false
		return false
	}
	for _, n := range order {
		if visit(n) {
			return true
		}
	}
	return false
}
