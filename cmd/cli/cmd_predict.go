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
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"text2diag/internal/contract"
	"text2diag/internal/pipeline"
	"text2diag/pkg/config"
	"text2diag/pkg/errors"
)

// predictFlags predict/batch 共享的运行时覆盖
type predictFlags struct {
	method      string
	graph       bool
	explanation bool
	noExplain   bool
}

func (f *predictFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.method, "method", "", "attribution method override (grad_x_input|integrated_gradients)")
	cmd.Flags().BoolVar(&f.graph, "graph", false, "attach dependency graphs")
	cmd.Flags().BoolVar(&f.explanation, "explanation-graph", false, "attach typed explanation graph")
	cmd.Flags().BoolVar(&f.noExplain, "no-explain", false, "skip evidence extraction")
}

func (f *predictFlags) apply(cfg *config.Config) {
	if f.method != "" {
		cfg.Explain.Method = f.method
	}
	if f.graph {
		cfg.Graph.Enabled = true
	}
	if f.explanation {
		cfg.Graph.Explanation = true
	}
	if f.noExplain {
		cfg.Explain.Enabled = false
	}
}

func newPredictCmd(g *globalFlags) *cobra.Command {
	var (
		f      predictFlags
		text   string
		id     string
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict a single text and print the decision record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("text") {
				return fmt.Errorf("--text is required")
			}
			b, err := g.bootstrap(cmd, f.apply)
			if err != nil {
				return err
			}
			defer closeBootstrap(b)

			out, err := b.Predictor.Predict(cmd.Context(), pipeline.Example{ID: id, Text: text})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(out)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&text, "text", "t", "", "input text")
	cmd.Flags().StringVar(&id, "id", "", "example id (default: derived from sanitized text)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}

func newBatchCmd(g *globalFlags) *cobra.Command {
	var (
		f           predictFlags
		in, out     string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Predict a JSONL file of {example_id, text} and write JSONL records",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := g.bootstrap(cmd, func(cfg *config.Config) {
				f.apply(cfg)
				if concurrency > 0 {
					cfg.Batch.Concurrency = concurrency
				}
			})
			if err != nil {
				return err
			}
			defer closeBootstrap(b)

			examples, err := readExamplesFile(cmd, in)
			if err != nil {
				return err
			}
			outputs, err := b.NewBatch().Run(cmd.Context(), examples)
			if err != nil {
				return err
			}
			w, err := createOutput(cmd, out)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := pipeline.WriteJSONL(w, outputs); err != nil {
				return err
			}
			abstained := 0
			for _, o := range outputs {
				if o.Abstain.IsAbstain {
					abstained++
				}
			}
			b.Logger.Info("batch finished", "records", len(outputs), "abstained", abstained)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input JSONL (- for stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output JSONL (- for stdout)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override batch.concurrency")
	return cmd
}

func readExamplesFile(cmd *cobra.Command, path string) ([]pipeline.Example, error) {
	r, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return pipeline.ReadExamples(r)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <records.json|records.jsonl|->",
		Short: "Validate decision records against the output contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			code := validateRecords(r, cmd.OutOrStdout())
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// validateRecords 逐条校验 JSON 流；全部通过返回 0，存在违例返回 1，无法解析返回 2
func validateRecords(r io.Reader, stdout io.Writer) int {
	dec := json.NewDecoder(r)
	total, invalid := 0, 0
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(stdout, "record %d: unreadable: %v\n", total+1, err)
			return 2
		}
		total++
		if err := contract.ValidateJSON(bytes.TrimSpace(raw)); err != nil {
			invalid++
			var cv *errors.ContractViolation
			if stderrors.As(err, &cv) {
				for _, v := range cv.Violations {
					fmt.Fprintf(stdout, "record %d: %s\n", total, v)
				}
			} else {
				fmt.Fprintf(stdout, "record %d: %v\n", total, err)
			}
		}
	}
	if total == 0 {
		fmt.Fprintln(stdout, "no records found")
		return 2
	}
	if invalid > 0 {
		fmt.Fprintf(stdout, "Validation FAILED: %d/%d records violate contract %s\n", invalid, total, contract.Version)
		return 1
	}
	fmt.Fprintf(stdout, "Validation PASSED: %d records\n", total)
	return 0
}
