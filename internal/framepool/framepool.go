// Package framepool implements a reusable pool of frame.Frame instances
// keyed by frame.AcqCfg, avoiding per-acquisition allocation churn.
package framepool

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nikgalvaz/camacq/internal/applog"
	"github.com/nikgalvaz/camacq/internal/frame"
)

// EnsureOpts controls EnsureReady's behavior.
type EnsureOpts struct {
	// Shrink allows the pool to drop frames down to n; without it,
	// EnsureReady only ever grows the free list.
	Shrink bool
	// Prefetch touches every page of newly allocated frames so the first
	// real acquisition doesn't pay a page-fault tax.
	Prefetch bool
}

// Pool hands out *frame.Frame instances bound to one AcqCfg at a time.
// Setup re-keys the pool, draining frames bound to a stale configuration.
type Pool struct {
	mu       sync.Mutex
	cfg      frame.AcqCfg
	deepCopy bool
	decoder  frame.PVCAMDecoder
	free     []*frame.Frame
	sem      *semaphore.Weighted
}

// New creates an empty pool. maxConcurrentPrefetch bounds how many frames
// EnsureReady touches in parallel.
func New(maxConcurrentPrefetch int64) *Pool {
	if maxConcurrentPrefetch < 1 {
		maxConcurrentPrefetch = 1
	}
	return &Pool{sem: semaphore.NewWeighted(maxConcurrentPrefetch)}
}

// Setup (re)configures the pool. If cfg differs from the pool's current
// configuration, all free frames are dropped (the garbage collector
// reclaims their buffers) since they're the wrong size/shape to reuse.
func (p *Pool) Setup(cfg frame.AcqCfg, deepCopy bool, decoder frame.PVCAMDecoder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cfg.Equal(cfg) || p.deepCopy != deepCopy {
		p.free = nil
	}
	p.cfg = cfg
	p.deepCopy = deepCopy
	p.decoder = decoder
}

// Take returns a reusable Frame from the free list, or allocates a new
// one if the free list is empty.
func (p *Pool) Take() *frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) > 0 {
		f := p.free[0]
		p.free = p.free[1:]
		return f
	}
	return frame.New(p.cfg, p.deepCopy, p.decoder)
}

// Release invalidates f and returns it to the free list, provided it
// still matches the pool's current configuration (a Setup call in
// between may have re-keyed the pool out from under an in-flight frame).
func (p *Pool) Release(f *frame.Frame) {
	f.Invalidate()
	p.mu.Lock()
	defer p.mu.Unlock()
	if f.AcqCfg().Equal(p.cfg) && f.DeepCopy() == p.deepCopy {
		p.free = append(p.free, f)
	}
}

// EnsureReady grows (and, with opts.Shrink, shrinks) the free list to
// exactly n frames. New frames are optionally prefetched (their backing
// pages touched) across p.sem-bounded concurrent workers before being
// added to the free list, so the first real CopyData doesn't pay for
// page faults.
func (p *Pool) EnsureReady(ctx context.Context, n int, opts EnsureOpts) error {
	p.mu.Lock()
	cur := len(p.free)
	cfg, deepCopy, decoder := p.cfg, p.deepCopy, p.decoder
	p.mu.Unlock()

	if cur >= n {
		if opts.Shrink && cur > n {
			p.mu.Lock()
			p.free = p.free[:n]
			p.mu.Unlock()
		}
		return nil
	}

	toAdd := n - cur
	newFrames := make([]*frame.Frame, toAdd)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	for i := 0; i < toAdd; i++ {
		i := i
		if err := p.sem.Acquire(ctx, 1); err != nil {
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer p.sem.Release(1)
			defer wg.Done()
			f := frame.New(cfg, deepCopy, decoder)
			if opts.Prefetch && deepCopy {
				touchPages(f)
			}
			newFrames[i] = f
		}()
	}
	wg.Wait()

	if firstErr != nil {
		applog.L().Warnw("framepool: EnsureReady prefetch aborted", "err", firstErr)
		return firstErr
	}

	p.mu.Lock()
	for _, f := range newFrames {
		if f != nil {
			p.free = append(p.free, f)
		}
	}
	p.mu.Unlock()
	return nil
}

// pageSize is queried once at startup.
var pageSize = os.Getpagesize()

// touchPages writes zero into every page of f's owned backing buffer,
// forcing the OS to commit physical pages up front.
func touchPages(f *frame.Frame) {
	data := f.Data()
	for i := 0; i < len(data); i += pageSize {
		data[i] = 0
	}
}

// Len reports the number of frames currently on the free list.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
