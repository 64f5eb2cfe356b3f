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

// text2diag 命令行：单条/批量预测、金标回归、证据包、对照研究与契约校验
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"text2diag/internal/app"
	"text2diag/pkg/config"
	"text2diag/pkg/log"
)

// version 命令行版本
const version = "0.1.0"

// exitError 携带退出码的错误；消息已输出时 msg 为空
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// globalFlags 所有子命令共享的参数
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if ee, ok := err.(*exitError); ok {
			if ee.msg != "" {
				fmt.Fprintln(os.Stderr, ee.msg)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "text2diag",
		Short:         "Explainable multi-label text classification with a strict output contract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("TEXT2DIAG_CONFIG"), "config file (YAML)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "text2diag cli %s\n", version)
			},
		},
		newPredictCmd(g),
		newBatchCmd(g),
		newValidateCmd(),
		newGoldenCmd(g),
		newBundleCmd(g),
		newBaselinesCmd(g),
		newDemoWeightsCmd(),
		newRemoteCmd(),
	)
	return root
}

// loadConfig 读取配置并应用命令行覆盖
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

// bootstrap 装配编排器；日志写到 stderr，stdout 只输出结果
func (g *globalFlags) bootstrap(cmd *cobra.Command, mutate func(*config.Config)) (*app.Bootstrap, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.NewWithWriter(cmd.ErrOrStderr(), &log.Config{Level: cfg.Log.Level, Format: "text"})
	return app.NewBootstrapWithLogger(cfg, logger)
}

// openInput "-" 表示 stdin
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

// createOutput "-" 或空表示 stdout
func createOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func closeBootstrap(b *app.Bootstrap) {
	_ = b.Close(context.Background())
}
