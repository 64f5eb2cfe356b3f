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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"text2diag/internal/contract"
	"text2diag/internal/pipeline"
	"text2diag/pkg/proof"
	"text2diag/pkg/signature"
)

func newGoldenCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "golden",
		Short: "Generate or check regression hashes of decision records",
	}

	var genIn, genOut string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Run the inputs and save per-example hashes plus master hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			hashes, err := runHashes(cmd, g, genIn)
			if err != nil {
				return err
			}
			set := proof.NewGoldenSet(hashes)
			if err := proof.SaveGolden(genOut, set); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "golden saved: %s (%d examples, master %s)\n", genOut, len(hashes), set.MasterHash)
			return nil
		},
	}
	generate.Flags().StringVarP(&genIn, "in", "i", "-", "input JSONL")
	generate.Flags().StringVarP(&genOut, "out", "o", "golden.json", "golden file to write")

	var checkIn, checkGolden string
	check := &cobra.Command{
		Use:   "check",
		Short: "Run the inputs and compare against a golden file",
		RunE: func(cmd *cobra.Command, args []string) error {
			golden, err := proof.LoadGolden(checkGolden)
			if err != nil {
				return err
			}
			hashes, err := runHashes(cmd, g, checkIn)
			if err != nil {
				return err
			}
			if code := reportGolden(proof.CompareGolden(golden, hashes), cmd.OutOrStdout()); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	check.Flags().StringVarP(&checkIn, "in", "i", "-", "input JSONL")
	check.Flags().StringVarP(&checkGolden, "golden", "g", "golden.json", "golden file to compare against")

	cmd.AddCommand(generate, check)
	return cmd
}

func runHashes(cmd *cobra.Command, g *globalFlags, in string) ([]proof.ExampleHash, error) {
	b, err := g.bootstrap(cmd, nil)
	if err != nil {
		return nil, err
	}
	defer closeBootstrap(b)
	examples, err := readExamplesFile(cmd, in)
	if err != nil {
		return nil, err
	}
	outputs, err := b.NewBatch().Run(cmd.Context(), examples)
	if err != nil {
		return nil, err
	}
	return pipeline.HashOutputs(outputs)
}

// reportGolden 输出比对结果；通过返回 0，否则返回 1
func reportGolden(res proof.VerifyResult, stdout io.Writer) int {
	if res.OK {
		fmt.Fprintln(stdout, "Golden check PASSED")
		return 0
	}
	fmt.Fprintln(stdout, "Golden check FAILED")
	for _, m := range res.Mismatches {
		fmt.Fprintf(stdout, "  mismatch %s: expected %s, got %s\n", m.ExampleID, m.Expected, m.Got)
	}
	for _, id := range res.Missing {
		fmt.Fprintf(stdout, "  missing %s\n", id)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(stdout, "  %s\n", e)
	}
	return 1
}

func newBundleCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export or verify a self-checking evidence bundle (zip)",
	}

	var in, out, keyDir, keyID string
	export := &cobra.Command{
		Use:   "export",
		Short: "Run the inputs and write records, golden hashes and manifest into a zip",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := g.bootstrap(cmd, nil)
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
			records := make([]any, len(outputs))
			for i, o := range outputs {
				records[i] = o
			}
			opts := proof.ExportOptions{
				RunID:           b.RunID,
				ContractVersion: contract.Version,
				ModelName:       b.Predictor.Options().ModelName,
				Version:         version,
			}
			if keyDir != "" {
				opts.Signer = signature.NewSigner(signature.NewFileKeyStore(keyDir), keyID)
			}
			zipBytes, err := proof.ExportBundleZip(records, opts)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, zipBytes, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundle written: %s (%d records)\n", out, len(records))
			return nil
		},
	}
	export.Flags().StringVarP(&in, "in", "i", "-", "input JSONL")
	export.Flags().StringVarP(&out, "out", "o", "bundle.zip", "zip to write")
	export.Flags().StringVar(&keyDir, "keys", "", "key directory; signs manifest.json when set")
	export.Flags().StringVar(&keyID, "key-id", "text2diag", "signing key id")

	var verifyKeys string
	verify := &cobra.Command{
		Use:   "verify <bundle.zip>",
		Short: "Verify file hashes, record hashes and master hash of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []proof.VerifyOption
			if verifyKeys != "" {
				ks := signature.NewFileKeyStore(verifyKeys)
				opts = append(opts, proof.WithSignature(signature.Verifier(cmd.Context(), ks)))
			}
			if code := verifyBundleZip(args[0], cmd.OutOrStdout(), cmd.ErrOrStderr(), opts...); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	verify.Flags().StringVar(&verifyKeys, "keys", "", "key directory with <key-id>.pub; requires a valid manifest.sig when set")

	var genDir, genID string
	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 key pair for signing bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := signature.NewFileKeyStore(genDir).GenerateKey(cmd.Context(), genID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key written: %s/%s.{key,pub}\n", genDir, genID)
			return nil
		},
	}
	keygen.Flags().StringVar(&genDir, "dir", "keys", "directory to write the key pair")
	keygen.Flags().StringVar(&genID, "key-id", "text2diag", "key id")

	cmd.AddCommand(export, verify, keygen)
	return cmd
}

// verifyBundleZip 校验证据包；0 通过，1 校验失败，2 无法读取
func verifyBundleZip(path string, stdout, stderr io.Writer, opts ...proof.VerifyOption) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "read bundle: %v\n", err)
		return 2
	}
	res := proof.VerifyBundleZip(data, opts...)
	if res.OK {
		fmt.Fprintln(stdout, "Verification PASSED")
		return 0
	}
	fmt.Fprintln(stdout, "Verification FAILED")
	for _, e := range res.Errors {
		fmt.Fprintf(stdout, "  %s\n", e)
	}
	return 1
}
