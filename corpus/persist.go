// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const headerMarker = "; Responsible run was "

// Header describes why a candidate was kept.
type Header struct {
	Run       int
	VMEdges   int
	ASMEdges  int
	TotalRuns int
}

func (h Header) Bytes() []byte {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "%v%d\n", headerMarker, h.Run)
	fmt.Fprintf(buf, "; Program found %d new edges in VM, %d in ASM || Total: %d\n",
		h.VMEdges, h.ASMEdges, h.VMEdges+h.ASMEdges)
	fmt.Fprintf(buf, "; Total runs: %d\n\n", h.TotalRuns)
	return buf.Bytes()
}

// Save persists data with its header into the corpus directory.
// The file becomes selectable after the next Reload.
func (c *Corpus) Save(data []byte, h Header) (string, error) {
	name := fmt.Sprintf("corpus_%d_%d.txt", h.VMEdges+h.ASMEdges, time.Now().UnixNano())
	path := filepath.Join(c.dir, name)
	content := append(h.Bytes(), data...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write corpus file: %w", err)
	}
	return path, nil
}

// ReadCandidate reads a corpus file. A header written by Save is stripped
// so that mutation starts from the program text.
func ReadCandidate(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return StripHeader(data), nil
}

func StripHeader(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte(headerMarker)) {
		return data
	}
	if idx := bytes.Index(data, []byte("\n\n")); idx != -1 {
		return data[idx+2:]
	}
	return data
}
