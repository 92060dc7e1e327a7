package kfx

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// BatchError reports the build failure of one book of a BuildAll call.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string { return fmt.Sprintf("kfx: book %d: %v", e.Index, e.Err) }

func (e *BatchError) Unwrap() error { return e.Err }

type buildJob struct {
	index int
	book  *Book
}

type buildOutcome struct {
	index int
	res   *Result
	err   error
}

// BuildAll builds books in parallel on at most workers goroutines (zero
// selects GOMAXPROCS). Each build owns its symbol table and style cache, so
// results equal those of sequential Build calls. Results are in input
// order; a failed book leaves a nil entry and contributes a *BatchError to
// the joined error. Books not started when ctx is done fail with its error.
func BuildAll(ctx context.Context, books []*Book, workers int, opts ...BuildOption) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = max(min(workers, len(books)), 1)
	cfg := newBuildConfig(opts)

	jobs := make(chan buildJob, len(books))
	outcomes := make(chan buildOutcome, len(books))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := ctx.Err(); err != nil {
					outcomes <- buildOutcome{index: job.index, err: err}
					continue
				}
				res, err := build(job.book, cfg)
				outcomes <- buildOutcome{index: job.index, res: res, err: err}
			}
		}()
	}
	for i, b := range books {
		jobs <- buildJob{index: i, book: b}
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]*Result, len(books))
	errs := make([]error, len(books))
	for o := range outcomes {
		results[o.index] = o.res
		if o.err != nil {
			errs[o.index] = &BatchError{Index: o.index, Err: o.err}
		}
	}
	cfg.logger.Debug().Int("books", len(books)).Int("workers", workers).Msg("batch built")
	return results, errors.Join(errs...)
}
