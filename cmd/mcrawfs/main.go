// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// mcrawfs mounts an MCRAW container as a directory of on-demand DNG
// frames plus an audio WAV file. Real MCRAW parsing is out of scope
// (see DESIGN.md); this binary's only source is --synthetic, a
// generated checkerboard clip, so the mount/FUSE/build pipeline can be
// exercised end to end without a real container parser.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/motioncam/mcrawfs/internal/fuse"
	"github.com/motioncam/mcrawfs/internal/scheduler"
	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/mount"
)

const version = "0.1.0-dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		showVersion  bool
		mountpoint   string
		baseName     string
		synthetic    bool
		frameCount   int
		width        int
		height       int
		fps          float64
		withAudio    bool
		cacheBytes   int64
		ioPoolSize   int
		cpuPoolSize  int
		allowOther   bool
		logLevel     string
		levels       string
	)

	flagSet := pflag.NewFlagSet("mcrawfs", pflag.ContinueOnError)
	flagSet.StringVar(&mountpoint, "mountpoint", "", "directory to mount the clip at (required)")
	flagSet.StringVar(&baseName, "base-name", "clip", "published root directory segment / frame name prefix")
	flagSet.BoolVar(&synthetic, "synthetic", false, "mount a generated demo clip instead of a real MCRAW file (required: no MCRAW parser is implemented)")
	flagSet.IntVar(&frameCount, "frames", 60, "synthetic clip: number of frames to generate")
	flagSet.IntVar(&width, "width", 640, "synthetic clip: frame width in pixels")
	flagSet.IntVar(&height, "height", 480, "synthetic clip: frame height in pixels")
	flagSet.Float64Var(&fps, "fps", 30, "synthetic clip: capture frame rate")
	flagSet.BoolVar(&withAudio, "audio", true, "synthetic clip: include a synthetic audio.wav entry")
	flagSet.Int64Var(&cacheBytes, "cache-bytes", 256<<20, "bounded artifact cache capacity in bytes")
	flagSet.IntVar(&ioPoolSize, "io-pool", 0, "I/O worker pool size (0 uses the scheduler default)")
	flagSet.IntVar(&cpuPoolSize, "cpu-pool", 0, "CPU worker pool size (0 uses runtime.GOMAXPROCS)")
	flagSet.BoolVar(&allowOther, "allow-other", false, "allow other users to access the FUSE mount (requires user_allow_other in /etc/fuse.conf)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&levels, "levels", "Static", "black/white level resolution mode: Static, Dynamic, or WHITE/BLACK,BLACK,BLACK,BLACK")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("mcrawfs %s\n", version)
		return nil
	}

	if mountpoint == "" {
		return fmt.Errorf("--mountpoint is required")
	}
	if !synthetic {
		return fmt.Errorf("real MCRAW parsing is not implemented; pass --synthetic to mount a generated demo clip")
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reader, err := newSyntheticReader(syntheticConfig{
		frameCount: frameCount,
		width:      width,
		height:     height,
		fps:        fps,
		withAudio:  withAudio,
	})
	if err != nil {
		return fmt.Errorf("generating synthetic clip: %w", err)
	}

	registry := mount.New(mount.Options{
		Scheduler:     scheduler.Config{IOPoolSize: ioPoolSize, CPUPoolSize: cpuPoolSize},
		CacheCapBytes: cacheBytes,
		Logger:        logger,
	})
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings := types.RenderSettings{Levels: levels}
	id, err := registry.Mount(ctx, settings, reader.sourceBytes(), reader, baseName, mountpoint)
	if err != nil {
		return fmt.Errorf("mounting synthetic clip: %w", err)
	}
	defer func() {
		if err := registry.Unmount(id); err != nil {
			logger.Error("unmount failed", "error", err)
		}
	}()

	server, err := fuse.Mount(fuse.Options{
		Mountpoint: mountpoint,
		Registry:   registry,
		MountID:    id,
		BaseName:   baseName,
		AllowOther: allowOther,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("mounting FUSE filesystem: %w", err)
	}
	defer func() {
		if err := server.Unmount(); err != nil {
			logger.Error("FUSE unmount failed", "error", err)
		}
	}()

	plan, _ := registry.GetFileInfo(id)
	logger.Info("mcrawfs mounted",
		"mountpoint", mountpoint,
		"frames", plan.TotalFrames,
		"target_fps", plan.TargetFps,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mcrawfs — mounts a clip as a directory of on-demand DNG frames.

Real MCRAW container parsing is not implemented (see DESIGN.md); use
--synthetic to mount a generated demo clip and exercise the full
decode/process/pack/encode/cache/serve pipeline end to end.

Usage:
  mcrawfs --mountpoint /path/to/mnt --synthetic [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
