// Package workerpool owns the media-engine worker processes: load-aware
// placement and crash recovery (§4.1).
package workerpool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/metrics"
	"go.uber.org/zap"
)

// ErrNoWorkersAvailable is the *NoWorkersAvailable* error of §7.
var ErrNoWorkersAvailable = fmt.Errorf("no workers available")

const (
	basePort     = 20000
	portsPerWork = 1000
	restartDelay = 2 * time.Second
)

// CounterName identifies one of a worker's four load counters (§4.1).
type CounterName string

const (
	CounterRouters    CounterName = "routers"
	CounterTransports CounterName = "transports"
	CounterConsumers  CounterName = "consumers"
	CounterProducers  CounterName = "producers"
)

// Factory constructs a media-engine worker bound to the given port range.
// Tests inject a fake.Worker factory; a real binding would spawn a
// subprocess here.
type Factory func(pid string, minPort, maxPort int) mediaengine.Worker

// handle pairs a worker with its load counters and port range.
type handle struct {
	mu               sync.Mutex
	worker           mediaengine.Worker
	index            int // position used to derive the port range on restart
	minPort, maxPort int
	routers          int
	transports       int
	consumers        int
	producers        int
}

func (h *handle) score() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return 10*float64(h.routers) + float64(h.transports) + 0.5*float64(h.consumers)
}

func (h *handle) publishGauges() {
	pid := h.worker.PID()
	h.mu.Lock()
	r, t, c, p := h.routers, h.transports, h.consumers, h.producers
	h.mu.Unlock()
	metrics.WorkerRouters.WithLabelValues(pid).Set(float64(r))
	metrics.WorkerTransports.WithLabelValues(pid).Set(float64(t))
	metrics.WorkerConsumers.WithLabelValues(pid).Set(float64(c))
	metrics.WorkerProducers.WithLabelValues(pid).Set(float64(p))
}

// Pool owns the set of live workers.
type Pool struct {
	mu      sync.Mutex
	handles []*handle
	factory Factory
	rrNext  int

	// onFatal is invoked when a restart fails and the pool is empty; the
	// default terminates the process (§4.1: "fatal...so an external
	// supervisor can restart the whole host"). Tests override this.
	onFatal func()
}

// New starts count workers (minimum 2 is the caller's responsibility per
// §4.1's `max(2, cpuCount)`; New itself just builds what it is told to).
func New(ctx context.Context, count int, factory Factory) *Pool {
	p := &Pool{
		factory: factory,
		onFatal: func() {
			logging.Error(ctx, "worker pool exhausted and restart failed; terminating process")
			os.Exit(1)
		},
	}
	for i := 0; i < count; i++ {
		p.spawn(ctx, i)
	}
	return p
}

func (p *Pool) spawn(ctx context.Context, index int) {
	minPort := basePort + portsPerWork*index
	maxPort := basePort + portsPerWork*(index+1) - 1
	w := p.factory(fmt.Sprintf("worker-%d", index), minPort, maxPort)

	h := &handle{worker: w, index: index, minPort: minPort, maxPort: maxPort}

	p.mu.Lock()
	p.handles = append(p.handles, h)
	n := len(p.handles)
	p.mu.Unlock()

	metrics.WorkersActive.Set(float64(n))
	h.publishGauges()

	go p.watch(ctx, h)
}

// watch blocks on the worker's death signal and triggers recovery (§4.1).
func (p *Pool) watch(ctx context.Context, h *handle) {
	select {
	case <-ctx.Done():
		return
	case <-h.worker.Died():
	}

	logging.Error(ctx, "media-engine worker died", zap.String("worker_pid", h.worker.PID()))

	p.mu.Lock()
	for i, candidate := range p.handles {
		if candidate == h {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			break
		}
	}
	metrics.WorkersActive.Set(float64(len(p.handles)))
	p.mu.Unlock()

	metrics.WorkerRouters.DeleteLabelValues(h.worker.PID())
	metrics.WorkerTransports.DeleteLabelValues(h.worker.PID())
	metrics.WorkerConsumers.DeleteLabelValues(h.worker.PID())
	metrics.WorkerProducers.DeleteLabelValues(h.worker.PID())

	time.AfterFunc(restartDelay, func() {
		p.restart(ctx, h.index)
	})
}

func (p *Pool) restart(ctx context.Context, index int) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "panic restarting worker", zap.Any("recover", r))
			p.failIfEmpty(ctx)
		}
	}()

	minPort := basePort + portsPerWork*index
	maxPort := basePort + portsPerWork*(index+1) - 1
	w := p.factory(fmt.Sprintf("worker-%d", index), minPort, maxPort)

	h := &handle{worker: w, index: index, minPort: minPort, maxPort: maxPort}

	p.mu.Lock()
	p.handles = append(p.handles, h)
	n := len(p.handles)
	p.mu.Unlock()

	metrics.WorkersActive.Set(float64(n))
	metrics.WorkerRestartsTotal.Inc()
	h.publishGauges()

	logging.Info(ctx, "worker restarted", zap.String("worker_pid", w.PID()), zap.Int("min_port", minPort), zap.Int("max_port", maxPort))

	go p.watch(ctx, h)
}

func (p *Pool) failIfEmpty(ctx context.Context) {
	p.mu.Lock()
	empty := len(p.handles) == 0
	p.mu.Unlock()
	if empty {
		p.onFatal()
	}
}

// GetLeastLoaded returns the worker with the smallest load score S(W) =
// 10*routers + transports + 0.5*consumers, ties broken by first-encountered.
func (p *Pool) GetLeastLoaded() (PID string, err error) {
	p.mu.Lock()
	handles := append([]*handle(nil), p.handles...)
	p.mu.Unlock()

	if len(handles) == 0 {
		return "", ErrNoWorkersAvailable
	}

	best := handles[0]
	bestScore := best.score()
	for _, h := range handles[1:] {
		if s := h.score(); s < bestScore {
			best, bestScore = h, s
		}
	}
	return best.worker.PID(), nil
}

// GetRoundRobin returns workers in cyclic order. Test-harness use only; not
// used by default placement (§4.1).
func (p *Pool) GetRoundRobin() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handles) == 0 {
		return "", ErrNoWorkersAvailable
	}
	h := p.handles[p.rrNext%len(p.handles)]
	p.rrNext++
	return h.worker.PID(), nil
}

// Worker returns the live mediaengine.Worker for a pid, if still in the pool.
func (p *Pool) Worker(pid string) (mediaengine.Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		if h.worker.PID() == pid {
			return h.worker, true
		}
	}
	return nil, false
}

// UpdateLoad is a thread-safe increment/decrement of one counter (§4.1).
func (p *Pool) UpdateLoad(pid string, counter CounterName, delta int) {
	p.mu.Lock()
	var target *handle
	for _, h := range p.handles {
		if h.worker.PID() == pid {
			target = h
			break
		}
	}
	p.mu.Unlock()
	if target == nil {
		return
	}

	target.mu.Lock()
	switch counter {
	case CounterRouters:
		target.routers += delta
	case CounterTransports:
		target.transports += delta
	case CounterConsumers:
		target.consumers += delta
	case CounterProducers:
		target.producers += delta
	}
	target.routers = max(target.routers, 0)
	target.transports = max(target.transports, 0)
	target.consumers = max(target.consumers, 0)
	target.producers = max(target.producers, 0)
	target.mu.Unlock()

	target.publishGauges()
}

// PortRanges returns every worker's current [min, max] port range, for
// testing the pairwise-disjoint invariant (§8 invariant 5).
func (p *Pool) PortRanges() map[string][2]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string][2]int, len(p.handles))
	for _, h := range p.handles {
		out[h.worker.PID()] = [2]int{h.minPort, h.maxPort}
	}
	return out
}

// Size returns the current number of workers in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
