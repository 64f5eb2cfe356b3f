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
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"text2diag/internal/contract"
	"text2diag/pkg/utils"
)

func apiBaseURL() string {
	return utils.CoalesceString(os.Getenv("TEXT2DIAG_API_URL"), "http://localhost:8080")
}

func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

// remotePredict 调用 POST /api/predict
func remotePredict(c *resty.Client, id, text string) (contract.Output, error) {
	var out contract.Output
	resp, err := c.R().
		SetBody(map[string]string{"example_id": id, "text": text}).
		SetResult(&out).
		Post("/api/predict")
	if err != nil {
		return contract.Output{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		return contract.Output{}, fmt.Errorf("POST /api/predict: %s: %s", resp.Status(), resp.String())
	}
	return out, nil
}

// remoteHealth 调用 GET /api/health
func remoteHealth(c *resty.Client) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.R().
		SetResult(&out).
		Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/health: %s", resp.String())
	}
	return out, nil
}

func newRemoteCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call a running text2diag API server",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "api-url", apiBaseURL(), "API base URL (env TEXT2DIAG_API_URL)")

	var text, id string
	predict := &cobra.Command{
		Use:   "predict",
		Short: "POST /api/predict and print the record",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := remotePredict(newClient(baseURL), id, text)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	predict.Flags().StringVarP(&text, "text", "t", "", "input text")
	predict.Flags().StringVar(&id, "id", "", "example id")

	health := &cobra.Command{
		Use:   "health",
		Short: "GET /api/health",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := remoteHealth(newClient(baseURL))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%v\n", out["status"])
			return nil
		},
	}

	cmd.AddCommand(predict, health)
	return cmd
}
