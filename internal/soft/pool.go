package soft

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/metrics"
)

// Pool runs archive parsing on a fixed number of workers. Parsing is
// CPU-bound, so its parallelism is sized independently of the download
// concurrency gate and never occupies a download slot.
type Pool struct {
	tasks     chan parseTask
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *zap.Logger
}

type parseTask struct {
	ctx    context.Context
	path   string
	result chan parseResult
}

type parseResult struct {
	series geo.Series
	err    error
}

// NewPool starts workers goroutines ready to parse archives. A non-positive
// worker count defaults to the number of CPUs.
func NewPool(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		tasks:  make(chan parseTask),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Parse submits one archive for parsing and blocks until a worker finishes it
// or the context ends.
func (p *Pool) Parse(ctx context.Context, path string) (geo.Series, error) {
	t := parseTask{ctx: ctx, path: path, result: make(chan parseResult, 1)}
	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return geo.Series{}, ctx.Err()
	}
	select {
	case r := <-t.result:
		return r.series, r.err
	case <-ctx.Done():
		return geo.Series{}, ctx.Err()
	}
}

// Close stops accepting work and waits for in-flight parses to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.tasks {
		if err := t.ctx.Err(); err != nil {
			t.result <- parseResult{err: err}
			continue
		}
		start := time.Now()
		meta, err := ParseArchive(t.path)
		if err != nil {
			p.logger.Error("parse archive failed", zap.String("path", t.path), zap.Error(err))
			t.result <- parseResult{err: err}
			continue
		}
		series := Normalize(meta, p.logger)
		metrics.ObserveParseDuration(time.Since(start))
		t.result <- parseResult{series: series}
	}
}
