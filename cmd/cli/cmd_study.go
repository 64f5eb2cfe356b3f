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

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"text2diag/internal/model/modeltest"
	"text2diag/internal/pipeline"
)

func newBaselinesCmd(g *globalFlags) *cobra.Command {
	var (
		in, out string
		seed    int64
	)
	cmd := &cobra.Command{
		Use:   "baselines",
		Short: "Faithfulness control study: evidence vs random spans vs shuffled label",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := g.bootstrap(cmd, nil)
			if err != nil {
				return err
			}
			defer closeBootstrap(b)
			if !cmd.Flags().Changed("seed") {
				seed = b.Config.Reproducibility.Seed
			}
			examples, err := readExamplesFile(cmd, in)
			if err != nil {
				return err
			}
			rows, summary, err := pipeline.NewStudy(b.Predictor, seed).Run(cmd.Context(), examples)
			if err != nil {
				return err
			}
			if out != "" {
				w, err := createOutput(cmd, out)
				if err != nil {
					return err
				}
				defer w.Close()
				if err := pipeline.WriteJSONL(w, rows); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"seed": seed, "summary": summary})
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input JSONL")
	cmd.Flags().StringVarP(&out, "out", "o", "", "per-label rows JSONL (optional)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: reproducibility.seed)")
	return cmd
}

func newDemoWeightsCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "demo-weights",
		Short: "Write the built-in keyword reference model weights as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _ := modeltest.New()
			if err := m.SaveFile(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "weights written: %s (labels %v)\n", out, m.Labels())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "weights.json", "output path")
	return cmd
}
