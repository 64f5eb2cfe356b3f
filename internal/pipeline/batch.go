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

package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"text2diag/internal/contract"
	"text2diag/pkg/proof"
)

// Batch 有界并发批处理；输出顺序与输入一致
type Batch struct {
	predictor   *Predictor
	concurrency int
}

// NewBatch 创建批处理器；concurrency < 1 时按 1 处理
func NewBatch(p *Predictor, concurrency int) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{predictor: p, concurrency: concurrency}
}

// Run 并发处理全部样本；任一样本返回错误时取消其余样本并返回该错误
func (b *Batch) Run(ctx context.Context, examples []Example) ([]contract.Output, error) {
	outputs := make([]contract.Output, len(examples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, ex := range examples {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := b.predictor.Predict(gctx, ex)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// HashOutputs 按顺序计算每条记录的回归哈希
func HashOutputs(outputs []contract.Output) ([]proof.ExampleHash, error) {
	hashes := make([]proof.ExampleHash, len(outputs))
	for i, o := range outputs {
		h, err := proof.HashRecord(o)
		if err != nil {
			return nil, err
		}
		hashes[i] = proof.ExampleHash{ExampleID: o.ExampleID, Hash: h}
	}
	return hashes, nil
}

// RunGolden 处理金标输入并与金标比对
func (b *Batch) RunGolden(ctx context.Context, examples []Example, golden proof.GoldenSet) (proof.VerifyResult, []proof.ExampleHash, error) {
	outputs, err := b.Run(ctx, examples)
	if err != nil {
		return proof.VerifyResult{}, nil, err
	}
	hashes, err := HashOutputs(outputs)
	if err != nil {
		return proof.VerifyResult{}, nil, err
	}
	return proof.CompareGolden(golden, hashes), hashes, nil
}
