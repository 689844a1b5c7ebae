package utils

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// ErrPoolClosed is returned when work is submitted to a closed WorkerPool.
var ErrPoolClosed = errors.New("worker pool is closed")

// RangeWorkFunc processes the half-open index range [from, to) on behalf of worker workerNum.
// Each call gets a disjoint range, so implementations may write to per-worker or per-index
// outputs without locking.
type RangeWorkFunc func(workerNum, from, to int)

type rangeJob struct {
	from, to int
	work     RangeWorkFunc
	done     *sync.WaitGroup
	errOut   *error
}

// WorkerPool is a fixed number of long-lived goroutines. Run splits an index space into contiguous
// ranges, one per worker, and blocks until every range is processed. The pool is meant to be
// created once per session and reused across calls; Close must be called to release the goroutines.
type WorkerPool struct {
	size    int
	jobs    []chan rangeJob
	runMu   sync.Mutex
	closed  atomic.Bool
	workers sync.WaitGroup
}

// NewWorkerPool starts size worker goroutines. Sizes below 1 are treated as 1.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	pool := &WorkerPool{size: size, jobs: make([]chan rangeJob, size)}
	pool.workers.Add(size)
	for i := 0; i < size; i++ {
		jobs := make(chan rangeJob)
		pool.jobs[i] = jobs
		workerNum := i
		goutils.PanicCapturingGo(func() {
			defer pool.workers.Done()
			for job := range jobs {
				runJob(workerNum, job)
			}
		})
	}
	return pool
}

func runJob(workerNum int, job rangeJob) {
	defer job.done.Done()
	defer func() {
		if thePanic := recover(); thePanic != nil {
			*job.errOut = errors.Errorf("got panic in worker %d: %v", workerNum, thePanic)
		}
	}()
	job.work(workerNum, job.from, job.to)
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Ranges returns the [from, to) range each worker receives for totalSize items. The last worker
// picks up the remainder.
func (p *WorkerPool) Ranges(totalSize int) [][2]int {
	groupSize := totalSize / p.size
	extra := totalSize % p.size
	ranges := make([][2]int, p.size)
	for groupNum := 0; groupNum < p.size; groupNum++ {
		from := groupSize * groupNum
		to := groupSize * (groupNum + 1)
		if groupNum == p.size-1 {
			to += extra
		}
		ranges[groupNum] = [2]int{from, to}
	}
	return ranges
}

// Run dispatches work over totalSize items and waits for all workers to finish. Empty ranges are
// not dispatched. Panics inside work are recovered and returned as an error once every worker is done.
// Concurrent calls to Run are serialized.
func (p *WorkerPool) Run(totalSize int, work RangeWorkFunc) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if totalSize <= 0 {
		return nil
	}
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.closed.Load() {
		return ErrPoolClosed
	}

	errs := make([]error, p.size)
	var done sync.WaitGroup
	for workerNum, r := range p.Ranges(totalSize) {
		if r[0] == r[1] {
			continue
		}
		done.Add(1)
		p.jobs[workerNum] <- rangeJob{from: r[0], to: r[1], work: work, done: &done, errOut: &errs[workerNum]}
	}
	done.Wait()
	return multierr.Combine(errs...)
}

// Close stops the workers and waits for them to exit. Close is idempotent.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.runMu.Lock()
	defer p.runMu.Unlock()
	for _, jobs := range p.jobs {
		close(jobs)
	}
	p.workers.Wait()
}
