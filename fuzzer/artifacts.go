// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/maruel/panicparse/stack"
	"golang.org/x/tools/txtar"
)

// maxSignatureFrames bounds the frames kept in a crash signature.
const maxSignatureFrames = 5

// crashSignature summarizes the panic dump of a crashed child. Runtime
// frames are skipped; the first remaining frame keeps its source line.
func crashSignature(out []byte, sig syscall.Signal) string {
	ctx, err := stack.ParseDump(bytes.NewReader(out), io.Discard, false)
	if err == nil && ctx != nil {
		for _, gr := range ctx.Goroutines {
			if !gr.First {
				continue
			}
			var lines []string
			for _, call := range gr.Stack.Calls {
				name := call.Func.PkgDotName()
				if strings.HasPrefix(name, "runtime.") {
					continue
				}
				if len(lines) == 0 {
					lines = append(lines, call.FullSrcLine())
				}
				lines = append(lines, name)
				if len(lines) == maxSignatureFrames {
					break
				}
			}
			if len(lines) != 0 {
				return strings.Join(lines, "\n")
			}
		}
	}
	s := bufio.NewScanner(bytes.NewReader(out))
	for s.Scan() {
		line := s.Text()
		if strings.HasPrefix(line, "panic: ") || strings.HasPrefix(line, "fatal error: ") {
			return line
		}
	}
	return fmt.Sprintf("signal %d (%v)", int(sig), sig)
}

// quoteInput renders data as a Go string literal split over lines.
func quoteInput(data []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < len(data); i += 20 {
		e := min(i+20, len(data))
		fmt.Fprintf(&buf, "\t%q", data[i:e])
		if e != len(data) {
			fmt.Fprintf(&buf, " +")
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.Bytes()
}

// saveCrash writes the crashing input and a triage archive next to it.
func saveCrash(dir string, n int, sig syscall.Signal, runs int64, data, stderr []byte) (string, error) {
	name := fmt.Sprintf("crash_%d_sig%d_%d", n, int(sig), time.Now().UnixNano())
	path := filepath.Join(dir, name+".txt")
	hdr := fmt.Sprintf("; Crash reason: %v (signal %d)\n; Total runs: %d\n\n", sig, int(sig), runs)
	if err := os.WriteFile(path, append([]byte(hdr), data...), 0o644); err != nil {
		return "", fmt.Errorf("failed to write crash: %w", err)
	}
	signature := crashSignature(stderr, sig)
	ar := &txtar.Archive{
		Comment: []byte(fmt.Sprintf("crash %d: %v\n", n, strings.SplitN(signature, "\n", 2)[0])),
		Files: []txtar.File{
			{Name: "input.asm", Data: data},
			{Name: "quoted", Data: quoteInput(data)},
			{Name: "stderr", Data: stderr},
			{Name: "signature", Data: []byte(signature + "\n")},
		},
	}
	if err := os.WriteFile(filepath.Join(dir, name+".txtar"), txtar.Format(ar), 0o644); err != nil {
		return "", fmt.Errorf("failed to write crash archive: %w", err)
	}
	return path, nil
}

func saveHang(dir string, n int, timeout time.Duration, runs int64, data []byte) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("hang_%d_%d.txt", n, time.Now().UnixNano()))
	hdr := fmt.Sprintf("; Program timeout after %v\n; Total runs: %d\n\n", timeout, runs)
	if err := os.WriteFile(path, append([]byte(hdr), data...), 0o644); err != nil {
		return "", fmt.Errorf("failed to write hang: %w", err)
	}
	return path, nil
}
