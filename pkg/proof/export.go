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

package proof

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// NewGoldenSet 由有序哈希列表构建金标集合
func NewGoldenSet(hashes []ExampleHash) GoldenSet {
	set := GoldenSet{Examples: make(map[string]string, len(hashes))}
	ordered := make([]string, len(hashes))
	for i, h := range hashes {
		set.Examples[h.ExampleID] = h.Hash
		ordered[i] = h.Hash
	}
	set.MasterHash = MasterHash(ordered)
	return set
}

// SaveGolden 写入金标文件（缩进 JSON）
func SaveGolden(path string, set GoldenSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize golden set: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write golden set: %w", err)
	}
	return nil
}

// LoadGolden 读取金标文件
func LoadGolden(path string) (GoldenSet, error) {
	var set GoldenSet
	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("failed to read golden set: %w", err)
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return set, fmt.Errorf("failed to parse golden set: %w", err)
	}
	if set.MasterHash == "" {
		return set, fmt.Errorf("golden set %s has no master_hash", path)
	}
	if set.Examples == nil {
		set.Examples = map[string]string{}
	}
	return set, nil
}

// ExportBundleZip 导出证据包：records.ndjson、golden.json、manifest.json，可选 manifest.sig
//
// records 按输入顺序写入，每行一条规范 JSON。
func ExportBundleZip(records []any, opts ExportOptions) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to export")
	}

	buf := new(bytes.Buffer)
	hashes := make([]ExampleHash, 0, len(records))
	for i, r := range records {
		line, err := CanonicalJSON(r)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize record %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		hashes = append(hashes, ExampleHash{ExampleID: exampleID(line, i), Hash: ComputeFileHash(line)})
	}
	recordsNDJSON := buf.Bytes()

	set := NewGoldenSet(hashes)
	goldenJSON, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize golden set: %w", err)
	}

	manifest := Manifest{
		Version:         opts.Version,
		RunID:           opts.RunID,
		ExportedAt:      time.Now().UTC(),
		RecordCount:     len(records),
		MasterHash:      set.MasterHash,
		ContractVersion: opts.ContractVersion,
		ModelName:       opts.ModelName,
		FileHashes: map[string]string{
			"records.ndjson": ComputeFileHash(recordsNDJSON),
			"golden.json":    ComputeFileHash(goldenJSON),
		},
	}
	if manifest.Version == "" {
		manifest.Version = "1.0"
	}
	manifest.GeneratedBy = fmt.Sprintf("text2diag %s", manifest.Version)

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}

	type zipFile struct {
		name    string
		content []byte
	}
	files := []zipFile{
		{"manifest.json", manifestJSON},
		{"records.ndjson", recordsNDJSON},
		{"golden.json", goldenJSON},
	}
	if opts.Signer != nil {
		sig, err := opts.Signer.SignPackage(manifestJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to sign manifest: %w", err)
		}
		files = append(files, zipFile{SignatureFile, []byte(sig + "\n")})
	}

	out := new(bytes.Buffer)
	zw := zip.NewWriter(out)
	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create zip file %s: %w", f.name, err)
		}
		if _, err := fw.Write(f.content); err != nil {
			return nil, fmt.Errorf("failed to write zip file %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return out.Bytes(), nil
}

// exampleID 读取规范 JSON 中的 example_id，缺失时按序号生成
func exampleID(line []byte, i int) string {
	var head struct {
		ExampleID string `json:"example_id"`
	}
	if err := json.Unmarshal(line, &head); err == nil && head.ExampleID != "" {
		return head.ExampleID
	}
	return fmt.Sprintf("#%d", i)
}
