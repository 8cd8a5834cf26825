// Package batch fans verification runs out to a bounded pool of
// workers and aggregates their results and progress events.
package batch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/templar-ci/templar/pkg/models"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// eventBuffer is the capacity of the aggregated event channel.
const eventBuffer = 64

// EventType represents the type of batch event.
type EventType string

const (
	// EventRunStarted indicates a template's verification has started.
	EventRunStarted EventType = "run_started"
	// EventRunFinished indicates a template's verification has finished.
	EventRunFinished EventType = "run_finished"
)

// Event represents a progress event emitted while a batch executes.
// These events drive the TUI and the streaming console output.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// Template is the name of the template the event concerns.
	Template string
	// Result holds the finished run, set for run_finished events.
	Result *models.VerificationResult
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// RunFunc executes one verification run to completion.
type RunFunc func(ctx context.Context, ref models.TemplateRef, cfg models.RunConfig) *models.VerificationResult

// Config contains configuration options for a Coordinator.
type Config struct {
	// Workers bounds how many runs execute concurrently.
	Workers int
	// RunTimeout caps each individual run. Zero means no per-run cap.
	RunTimeout time.Duration
	// Run performs a single verification. Required.
	Run RunFunc
}

// Coordinator runs many template verifications concurrently while
// keeping each run isolated: a panicking or timed-out run becomes a
// failed result, never a crashed batch.
type Coordinator struct {
	workers    int
	runTimeout time.Duration
	run        RunFunc

	events  chan Event
	dropped atomic.Uint64
}

// New creates a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Coordinator{
		workers:    workers,
		runTimeout: cfg.RunTimeout,
		run:        cfg.Run,
		events:     make(chan Event, eventBuffer),
	}
}

// Events returns the channel carrying progress events. It is closed
// when RunAll returns.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// DroppedEventCount returns how many events were discarded because no
// consumer kept up.
func (c *Coordinator) DroppedEventCount() uint64 {
	return c.dropped.Load()
}

// RunAll verifies every template and returns the results keyed by
// template name. Every template gets a result: cancellation mid-batch
// yields failed results for the runs that never got their turn.
func (c *Coordinator) RunAll(ctx context.Context, refs []models.TemplateRef, cfg models.RunConfig) map[string]*models.VerificationResult {
	jobs := make(chan models.TemplateRef)
	results := make(map[string]*models.VerificationResult, len(refs))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				c.emit(Event{Type: EventRunStarted, Template: ref.Name, Timestamp: time.Now().UTC()})
				res := c.runOne(ctx, ref, cfg)
				mu.Lock()
				results[ref.Name] = res
				mu.Unlock()
				c.emit(Event{Type: EventRunFinished, Template: ref.Name, Result: res, Timestamp: time.Now().UTC()})
			}
		}()
	}

	for _, ref := range refs {
		jobs <- ref
	}
	close(jobs)
	wg.Wait()
	close(c.events)

	return results
}

// runOne executes a single verification with its own deadline and
// panic containment.
func (c *Coordinator) runOne(ctx context.Context, ref models.TemplateRef, cfg models.RunConfig) (res *models.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[batch] run for %s panicked: %v", ref.Name, r)
			res = failedResult(ref, cfg, fmt.Sprintf("internal error verifying %s: %v", ref.Name, r))
		}
	}()

	runCtx := ctx
	if c.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.runTimeout)
		defer cancel()
	}
	return c.run(runCtx, ref, cfg)
}

// emit delivers an event without ever blocking a worker. Events are
// dropped when the consumer lags; the results map stays authoritative.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.dropped.Add(1)
	}
}

// failedResult synthesizes a complete result for a run that could not
// report one itself.
func failedResult(ref models.TemplateRef, cfg models.RunConfig, msg string) *models.VerificationResult {
	now := time.Now().UTC()
	res := models.NewResult(uuid.New().String(), ref, cfg)
	res.AddStep(models.StepOutcome{
		Step:       models.StepValidate,
		Status:     models.StatusFail,
		Messages:   []string{msg},
		StartedAt:  now,
		FinishedAt: now,
	})
	res.Aborted = true
	res.Finalize()
	return res
}

// Overall reduces a batch to its worst verdict.
func Overall(results map[string]*models.VerificationResult) models.Status {
	overall := models.StatusPass
	for _, res := range results {
		overall = models.Worse(overall, res.Overall)
	}
	return overall
}
