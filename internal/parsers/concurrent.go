package parsers

import (
	"context"
	"sort"
	"sync"
	"time"

	"gst-reconciliation-service/pkg/logger"
)

// LoadFunc reads one input of a run
type LoadFunc func(ctx context.Context) error

// ConcurrentParser runs independent loads (books, portal, amendments) in parallel
type ConcurrentParser struct {
	maxConcurrency int
	semaphore      chan struct{}
	logger         logger.Logger
}

// NewConcurrentParser creates a parser that runs at most maxConcurrency loads at once
func NewConcurrentParser(maxConcurrency int) *ConcurrentParser {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &ConcurrentParser{
		maxConcurrency: maxConcurrency,
		semaphore:      make(chan struct{}, maxConcurrency),
		logger:         logger.WithComponent("concurrent_parser"),
	}
}

// LoadResult reports how one named load went
type LoadResult struct {
	Name     string
	Duration time.Duration
	Error    error
}

// Run executes every load and waits for all of them. Results are sorted by name;
// the returned error is the first failing load in that order.
func (cp *ConcurrentParser) Run(ctx context.Context, loads map[string]LoadFunc) ([]LoadResult, error) {
	results := make(chan LoadResult, len(loads))

	var wg sync.WaitGroup
	for name, load := range loads {
		wg.Add(1)

		go func(name string, load LoadFunc) {
			defer wg.Done()

			select {
			case cp.semaphore <- struct{}{}:
			case <-ctx.Done():
				results <- LoadResult{Name: name, Error: ctx.Err()}
				return
			}
			defer func() { <-cp.semaphore }()

			start := time.Now()
			err := load(ctx)
			results <- LoadResult{Name: name, Duration: time.Since(start), Error: err}
		}(name, load)
	}

	wg.Wait()
	close(results)

	out := make([]LoadResult, 0, len(loads))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	for _, r := range out {
		cp.logger.WithFields(logger.Fields{
			"load":     r.Name,
			"duration": r.Duration,
			"failed":   r.Error != nil,
		}).Debug("Load finished")
	}
	for _, r := range out {
		if r.Error != nil {
			return out, r.Error
		}
	}
	return out, nil
}
