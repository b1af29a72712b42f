// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

// Command runner is the vmfuzz entry point: vmfuzz [max-iterations].
// The same binary is re-executed as the sandboxed child.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bradleyjkemp/vmfuzz/config"
	"github.com/bradleyjkemp/vmfuzz/fuzzer"
	"github.com/bradleyjkemp/vmfuzz/log"
	"github.com/bradleyjkemp/vmfuzz/sandbox"
)

func main() {
	if sandbox.IsChild() {
		sandbox.ChildMain()
	}
	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		log.Fatalf("%v", err)
	}
	switch len(os.Args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n < 0 {
			log.Fatalf("bad iteration count %q", os.Args[1])
		}
		cfg.MaxIterations = n
	default:
		log.Fatalf("usage: vmfuzz [max-iterations]")
	}
	log.SetVerbosity(cfg.Verbosity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, uuid.NewString()); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, runID string) error {
	f, err := fuzzer.New(cfg, runID)
	if err != nil {
		return err
	}
	defer f.Close()
	log.Logf(0, "max iterations: %v, timeout: %v, crashes dir: %v", cfg.MaxIterations, cfg.Timeout, cfg.Path(cfg.CrashDir))

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, loopDone := context.WithCancel(gctx)
	defer loopDone()
	if cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return fuzzer.ServeMetrics(loopCtx, ln, f.Registry)
		})
	}
	g.Go(func() error {
		defer loopDone()
		return f.Loop(loopCtx)
	})
	err = g.Wait()
	f.Stats.Report(os.Stdout)
	return err
}
