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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// CompareGolden 本次运行的有序哈希与金标比对
func CompareGolden(expected GoldenSet, current []ExampleHash) VerifyResult {
	got := NewGoldenSet(current)
	result := VerifyResult{
		MasterMatch: got.MasterHash == expected.MasterHash,
		Mismatches:  []Mismatch{},
		Errors:      []string{},
	}

	seen := make(map[string]bool, len(current))
	for _, h := range current {
		seen[h.ExampleID] = true
		if exp := expected.Examples[h.ExampleID]; exp != h.Hash {
			result.Mismatches = append(result.Mismatches, Mismatch{ExampleID: h.ExampleID, Expected: exp, Got: h.Hash})
		}
	}
	for id := range expected.Examples {
		if !seen[id] {
			result.Missing = append(result.Missing, id)
		}
	}
	sort.Strings(result.Missing)

	if !result.MasterMatch {
		result.Errors = append(result.Errors, fmt.Sprintf("master hash mismatch: expected %s, got %s", expected.MasterHash, got.MasterHash))
	}
	result.OK = result.MasterMatch && len(result.Mismatches) == 0 && len(result.Missing) == 0
	return result
}

// VerifyOption 证据包校验选项
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	verifySig func(data []byte, signature string) bool
}

// WithSignature 要求 manifest.sig 存在且通过 verify 校验
func WithSignature(verify func(data []byte, signature string) bool) VerifyOption {
	return func(o *verifyOptions) {
		o.verifySig = verify
	}
}

// VerifyBundleZip 校验证据包：文件哈希、记录哈希与 master hash，可选清单签名
func VerifyBundleZip(zipBytes []byte, opts ...VerifyOption) VerifyResult {
	var vo verifyOptions
	for _, opt := range opts {
		opt(&vo)
	}
	result := VerifyResult{OK: true, Errors: []string{}}
	fail := func(format string, args ...any) {
		result.OK = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	zipReader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		fail("failed to read zip: %v", err)
		return result
	}

	files := make(map[string][]byte)
	for _, f := range zipReader.File {
		rc, err := f.Open()
		if err != nil {
			fail("failed to open %s: %v", f.Name, err)
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			fail("failed to read %s: %v", f.Name, err)
			continue
		}
		files[f.Name] = data
	}

	manifestData, ok := files["manifest.json"]
	if !ok {
		fail("manifest.json not found")
		return result
	}
	if vo.verifySig != nil {
		sig, ok := files[SignatureFile]
		switch {
		case !ok:
			fail("%s not found", SignatureFile)
		case !vo.verifySig(manifestData, strings.TrimSpace(string(sig))):
			fail("manifest signature verification failed")
		}
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		fail("failed to parse manifest: %v", err)
		return result
	}
	for filename, expectedHash := range manifest.FileHashes {
		data, ok := files[filename]
		if !ok {
			fail("file %s declared in manifest but not found in zip", filename)
			continue
		}
		if actual := ComputeFileHash(data); actual != expectedHash {
			fail("file hash mismatch for %s: expected %s, got %s", filename, expectedHash, actual)
		}
	}

	var golden GoldenSet
	if err := json.Unmarshal(files["golden.json"], &golden); err != nil {
		fail("failed to parse golden.json: %v", err)
		return result
	}

	var hashes []ExampleHash
	scanner := bufio.NewScanner(bytes.NewReader(files["records.ndjson"]))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for i := 0; scanner.Scan(); i++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		hashes = append(hashes, ExampleHash{ExampleID: exampleID(line, i), Hash: ComputeFileHash(line)})
	}
	if err := scanner.Err(); err != nil {
		fail("failed to scan records: %v", err)
		return result
	}
	if len(hashes) != manifest.RecordCount {
		fail("record count mismatch: manifest %d, records %d", manifest.RecordCount, len(hashes))
	}

	cmp := CompareGolden(golden, hashes)
	result.MasterMatch = cmp.MasterMatch && golden.MasterHash == manifest.MasterHash
	result.Mismatches = cmp.Mismatches
	result.Missing = cmp.Missing
	for _, e := range cmp.Errors {
		fail("%s", e)
	}
	if golden.MasterHash != manifest.MasterHash {
		fail("manifest master_hash %s does not match golden.json %s", manifest.MasterHash, golden.MasterHash)
	}
	if len(cmp.Mismatches) > 0 || len(cmp.Missing) > 0 {
		result.OK = false
	}
	return result
}
