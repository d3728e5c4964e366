// Package enrich implements the AsyncEnricher (§4, §5): a fire-and-forget
// side effect that asks the LLM client for a short conversation summary and
// writes entity-boost hints into ConversationMemory, off the request path.
// The request handler enqueues work and returns immediately; enqueue never
// blocks (§5: "the request path must never wait on it").
package enrich

import (
	"context"
	"sync"
	"sync/atomic"

	"homerag/internal/llmclient"
	"homerag/internal/memory"
	"homerag/internal/ragtypes"
)

// DefaultQueueCapacity and DefaultWorkers are the §6.3 configuration
// defaults for the enricher's bounded queue and worker pool.
const (
	DefaultQueueCapacity = 1024
	DefaultWorkers       = 2
)

// Job is a unit of enrichment work: summarize a turn and credit the
// entities the pipeline surfaced this request.
type Job struct {
	SessionID string
	Turns     []ragtypes.ConversationTurn
	EntityIDs []string
}

// Enricher drains Jobs on a bounded channel with a fixed worker pool,
// dropping the oldest queued job when the queue is full rather than
// blocking the producer (§5 failure semantics: "drop-oldest-on-full").
type Enricher struct {
	llm    llmclient.Client
	mem    *memory.Store
	jobs   chan Job
	wg     sync.WaitGroup
	dropped atomic.Int64
}

// New starts workers-many goroutines draining a capacity-sized queue.
// Workers stop when ctx is canceled.
func New(ctx context.Context, llm llmclient.Client, mem *memory.Store, capacity, workers int) *Enricher {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	e := &Enricher{llm: llm, mem: mem, jobs: make(chan Job, capacity)}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.runWorker(ctx)
	}
	return e
}

// Enqueue submits a Job without blocking. If the queue is full, the oldest
// queued job is dropped to make room (producer never waits).
func (e *Enricher) Enqueue(job Job) {
	select {
	case e.jobs <- job:
		return
	default:
	}
	select {
	case <-e.jobs:
		e.dropped.Add(1)
	default:
	}
	select {
	case e.jobs <- job:
	default:
		e.dropped.Add(1)
	}
}

// Dropped reports how many jobs were evicted for being queued behind a
// full buffer; exposed for diagnostics/metrics.
func (e *Enricher) Dropped() int64 { return e.dropped.Load() }

func (e *Enricher) runWorker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-e.jobs:
			if !ok {
				return
			}
			e.process(ctx, job)
		}
	}
}

func (e *Enricher) process(ctx context.Context, job Job) {
	if e.mem == nil || len(job.EntityIDs) == 0 {
		return
	}
	e.mem.Record(ctx, job.SessionID, job.EntityIDs)
	if e.llm == nil || len(job.Turns) == 0 {
		return
	}
	_, _ = e.llm.Complete(ctx, llmclient.CompleteRequest{
		Prompt:    summaryPrompt(job.Turns),
		MaxTokens: 120,
	})
}

func summaryPrompt(turns []ragtypes.ConversationTurn) string {
	out := "Summarize this conversation in one short sentence:\n"
	for _, t := range turns {
		out += string(t.Role) + ": " + t.Content + "\n"
	}
	return out
}

// Close stops accepting new jobs and waits for in-flight jobs to drain.
// The caller's ctx cancellation (passed to New) is what actually unblocks
// worker goroutines; Close just waits for them to exit.
func (e *Enricher) Close() {
	close(e.jobs)
	e.wg.Wait()
}
