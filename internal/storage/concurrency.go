// This file adapts the teacher's worker-pool concurrency framework
// (originally a generic read/write request-queue system for SQL
// execution) down to the one concurrent job the core actually has:
// running several index builders at once, bounded by
// EngineConfig.BuilderWorkers, and tearing all of them down cleanly when
// the owning context is cancelled.
package storage

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BuilderSupervisor runs a bounded number of Builder.Run loops
// concurrently (spec §4.4's background task, one per index), using the
// same acquire-a-slot-before-working discipline as the teacher's
// WorkerPool.worker, but with golang.org/x/sync/errgroup doing the
// goroutine bookkeeping and first-error propagation instead of a raw
// sync.WaitGroup.
type BuilderSupervisor struct {
	maxConcurrent int
	sem           chan struct{}
	log           *Logger

	mu       sync.Mutex
	builders map[string]*Builder // index name -> builder
}

// NewBuilderSupervisor creates a supervisor bounded to maxConcurrent
// simultaneously running builders.
func NewBuilderSupervisor(maxConcurrent int) *BuilderSupervisor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &BuilderSupervisor{
		maxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		log:           NewLogger("builder-supervisor"),
		builders:      make(map[string]*Builder),
	}
}

// Register adds a builder under name (typically the index name), to be
// picked up by the next Run call.
func (s *BuilderSupervisor) Register(name string, b *Builder) {
	s.mu.Lock()
	s.builders[name] = b
	s.mu.Unlock()
}

// Unregister removes a builder, e.g. after DropIndex.
func (s *BuilderSupervisor) Unregister(name string) {
	s.mu.Lock()
	delete(s.builders, name)
	s.mu.Unlock()
}

// Run drives every registered builder's Run loop until ctx is cancelled
// or one builder returns a non-context error, bounding concurrency to
// maxConcurrent via a semaphore, exactly as the teacher's WorkerPool
// bounded concurrent handlers via a buffered channel semaphore. This is
// the batch entry point (everything registered so far, run together,
// caller blocks until they're all done); Engine.StartBuilder uses
// LaunchOne instead, since indexes are added one at a time at runtime.
func (s *BuilderSupervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	builders := make([]*Builder, 0, len(s.builders))
	for _, b := range s.builders {
		builders = append(builders, b)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range builders {
		b := b
		g.Go(func() error { return s.runOne(gctx, b) })
	}
	return g.Wait()
}

// LaunchOne registers a single builder and starts its Run loop as its own
// goroutine immediately, bounded by the same maxConcurrent semaphore as
// Run but independent of any other builder's lifecycle: it neither waits
// for, nor is waited on by, builders already running. Errors are logged,
// matching spec §7's "the index builder does not surface errors to
// foreground queries — it logs and retries" (Builder.Run itself only
// returns on ctx cancellation in normal operation).
func (s *BuilderSupervisor) LaunchOne(ctx context.Context, name string, b *Builder) {
	s.Register(name, b)
	go func() {
		if err := s.runOne(ctx, b); err != nil {
			s.log.Errorf("builder %s stopped: %v", name, err)
		}
	}()
}

func (s *BuilderSupervisor) runOne(ctx context.Context, b *Builder) error {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	err := b.Run(ctx)
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}
