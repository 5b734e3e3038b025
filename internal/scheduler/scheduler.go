// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler implements the two-pool build scheduler (spec
// component C7): a small-concurrency I/O pool that reads raw frames
// from the container, and a CPU pool (sized to GOMAXPROCS) that runs
// the frame processor, bit-packer, and DNG encoder. Grounded on the
// job-channel-draining worker shape of
// _examples/1F47E-go-bitreel/pkg/workers/workers.go (a worker reads
// from a channel until it is closed or the context is cancelled),
// generalized to a two-stage I/O->CPU handoff.
package scheduler

import (
	"context"
	"runtime"
	"sync"
)

// Task is one build: I/O task -> CPU task -> completion (spec §4.8).
// ioStage reads the raw frame (container I/O); cpuStage runs C3->C1->C2
// against the io stage's result. complete receives the final bytes
// (from a CPU-pool goroutine) or the error of whichever step failed
// (from the worker running that stage, or from Submit's caller when
// its context is done before the task is queued).
type Task struct {
	MountID  string
	ioStage  func(ctx context.Context) (any, error)
	cpuStage func(ctx context.Context, ioResult any) ([]byte, error)
	complete func(data []byte, err error)
}

// NewTask builds a Task from its three stages.
func NewTask(mountID string, ioStage func(ctx context.Context) (any, error), cpuStage func(ctx context.Context, ioResult any) ([]byte, error), complete func(data []byte, err error)) Task {
	return Task{MountID: mountID, ioStage: ioStage, cpuStage: cpuStage, complete: complete}
}

// Scheduler owns the two bounded worker pools. Cancel(mountID) signals
// in-flight tasks for that mount; already-running CPU work runs to
// completion and its result is discarded (spec §5 Cancellation).
type Scheduler struct {
	ioJobs  chan ioJob
	cpuJobs chan cpuJob

	mu        sync.Mutex
	cancelled map[string]bool

	wg sync.WaitGroup
}

type ioJob struct {
	ctx  context.Context
	task Task
}

type cpuJob struct {
	ctx      context.Context
	task     Task
	ioResult any
}

// Config sizes the two pools. IOPoolSize defaults to 2 (spec §4.8: "a
// small concurrency to avoid thrashing"); CPUPoolSize defaults to
// runtime.GOMAXPROCS(0).
type Config struct {
	IOPoolSize  int
	CPUPoolSize int
}

// New starts the scheduler's worker pools. Call Close to stop them.
func New(cfg Config) *Scheduler {
	if cfg.IOPoolSize <= 0 {
		cfg.IOPoolSize = 2
	}
	if cfg.CPUPoolSize <= 0 {
		cfg.CPUPoolSize = runtime.GOMAXPROCS(0)
	}

	s := &Scheduler{
		ioJobs:    make(chan ioJob, cfg.IOPoolSize*4),
		cpuJobs:   make(chan cpuJob, cfg.CPUPoolSize*4),
		cancelled: make(map[string]bool),
	}

	for i := 0; i < cfg.IOPoolSize; i++ {
		s.wg.Add(1)
		go s.runIOWorker()
	}
	for i := 0; i < cfg.CPUPoolSize; i++ {
		s.wg.Add(1)
		go s.runCPUWorker()
	}

	return s
}

// Submit enqueues a build task. Submit never blocks the caller beyond
// the I/O pool's channel buffer; results arrive via task.complete.
func (s *Scheduler) Submit(ctx context.Context, task Task) {
	select {
	case s.ioJobs <- ioJob{ctx: ctx, task: task}:
	case <-ctx.Done():
		task.complete(nil, ctx.Err())
	}
}

// Cancel marks mountID's in-flight tasks as cancelled. Queued I/O
// tasks for the mount are skipped when picked up and again at the
// I/O->CPU handoff; CPU work
// already running completes, but its result is discarded rather than
// delivered to complete (spec §5).
func (s *Scheduler) Cancel(mountID string) {
	s.mu.Lock()
	s.cancelled[mountID] = true
	s.mu.Unlock()
}

// ClearCancellation allows a mount ID to be reused after Cancel
// (e.g. if the same source is re-mounted under the same ID scheme in
// tests); production mount IDs are not reused within a process.
func (s *Scheduler) ClearCancellation(mountID string) {
	s.mu.Lock()
	delete(s.cancelled, mountID)
	s.mu.Unlock()
}

func (s *Scheduler) isCancelled(mountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[mountID]
}

func (s *Scheduler) runIOWorker() {
	defer s.wg.Done()
	for job := range s.ioJobs {
		if s.isCancelled(job.task.MountID) {
			continue
		}
		result, err := job.task.ioStage(job.ctx)
		if err != nil {
			job.task.complete(nil, err)
			continue
		}
		if s.isCancelled(job.task.MountID) {
			continue
		}
		select {
		case s.cpuJobs <- cpuJob{ctx: job.ctx, task: job.task, ioResult: result}:
		case <-job.ctx.Done():
			job.task.complete(nil, job.ctx.Err())
		}
	}
}

func (s *Scheduler) runCPUWorker() {
	defer s.wg.Done()
	for job := range s.cpuJobs {
		data, err := job.task.cpuStage(job.ctx, job.ioResult)
		// Already-running CPU work runs to completion even if the
		// mount was cancelled meanwhile; only its delivery is
		// suppressed (spec §5: "its result is discarded").
		if s.isCancelled(job.task.MountID) {
			continue
		}
		job.task.complete(data, err)
	}
}

// Close stops accepting new work and waits for in-flight tasks to
// drain.
func (s *Scheduler) Close() {
	close(s.ioJobs)
	close(s.cpuJobs)
	s.wg.Wait()
}
