package handlers

import (
	"context"
	"sync"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// BatchStats counts the outcomes of an ExecuteBatch call.
type BatchStats struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// NotStarted counts steps skipped because ctx ended first.
	NotStarted int `json:"not_started"`
}

// ExecuteBatch runs independent steps with at most concurrency executing at
// once and returns their results in input order. Steps never share a
// ledger, so no ordering between them is implied.
func (r *Registry) ExecuteBatch(ctx context.Context, steps []*StepContext, concurrency int) ([]*schema.HandlerResult, BatchStats) {
	results := make([]*schema.HandlerResult, len(steps))
	var stats BatchStats

	pool := newWorkerPool(concurrency)
	for i, sc := range steps {
		err := pool.submit(ctx, func(ctx context.Context) {
			results[i] = r.Execute(ctx, sc)
		})
		if err != nil {
			results[i] = notStarted(sc, err)
			stats.NotStarted++
		}
	}
	pool.wait()

	for _, res := range results {
		if res.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return results, stats
}

func notStarted(sc *StepContext, cause error) *schema.HandlerResult {
	err := schema.NewError(schema.ErrCodeExecution, "step not started: "+cause.Error()).WithCause(cause)
	meta := map[string]any{}
	if sc != nil {
		err = err.WithStep(sc.StepID)
		meta["intent"] = string(sc.Intent)
	}
	return schema.FailedResult(err, meta)
}

// workerPool bounds the number of goroutines running at once.
type workerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{sem: make(chan struct{}, size)}
}

// submit blocks until a slot frees up or ctx is done.
func (p *workerPool) submit(ctx context.Context, fn func(ctx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn(ctx)
	}()
	return nil
}

func (p *workerPool) wait() {
	p.wg.Wait()
}
