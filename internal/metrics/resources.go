package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource sample of one server process.
type Usage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	SampledAt  time.Time `json:"sampled_at"`
}

// ResourceCollector periodically samples CPU and memory of running servers.
// It observes only; it never limits a process.
type ResourceCollector struct {
	interval time.Duration
	log      *slog.Logger

	mu     sync.RWMutex
	latest map[string]Usage
	procs  map[string]*process.Process

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryRSS  *prometheus.GaugeVec
}

// NewResourceCollector creates a collector sampling every interval
// (5s when interval <= 0).
func NewResourceCollector(interval time.Duration, log *slog.Logger) *ResourceCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ResourceCollector{
		interval: interval,
		log:      log,
		latest:   make(map[string]Usage),
		procs:    make(map[string]*process.Process),
		stopCh:   make(chan struct{}),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gsl",
				Subsystem: "server",
				Name:      "cpu_percent",
				Help:      "CPU usage percentage of the server's launch process.",
			}, []string{"server_id"},
		),
		memoryRSS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gsl",
				Subsystem: "server",
				Name:      "memory_rss_bytes",
				Help:      "Resident memory of the server's launch process.",
			}, []string{"server_id"},
		),
	}
}

// Register registers the collector's gauges.
func (c *ResourceCollector) Register(r prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.cpuPercent, c.memoryRSS} {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start samples the processes returned by pids (server id -> pid) until ctx
// is cancelled or Stop is called.
func (c *ResourceCollector) Start(ctx context.Context, pids func() map[string]int32) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Collect(pids())
			}
		}
	}()
}

// Stop ends sampling and waits for the sampling goroutine.
func (c *ResourceCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Collect takes one sample of every pid and forgets servers no longer listed.
func (c *ResourceCollector) Collect(pids map[string]int32) {
	now := time.Now()
	for id, pid := range pids {
		if pid <= 0 {
			continue
		}
		u, err := c.sample(id, pid, now)
		if err != nil {
			c.log.Debug("resource sample failed", slog.String("server_id", id), slog.Int("pid", int(pid)), slog.Any("error", err))
			continue
		}
		c.mu.Lock()
		c.latest[id] = u
		c.mu.Unlock()
		c.cpuPercent.WithLabelValues(id).Set(u.CPUPercent)
		c.memoryRSS.WithLabelValues(id).Set(float64(u.MemoryRSS))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.latest {
		if _, ok := pids[id]; !ok {
			delete(c.latest, id)
			delete(c.procs, id)
			c.cpuPercent.DeleteLabelValues(id)
			c.memoryRSS.DeleteLabelValues(id)
		}
	}
}

// Latest returns the most recent sample for a server.
func (c *ResourceCollector) Latest(id string) (Usage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.latest[id]
	return u, ok
}

// sample reuses the gopsutil handle per server so CPUPercent measures the
// interval since the previous sample.
func (c *ResourceCollector) sample(id string, pid int32, at time.Time) (Usage, error) {
	c.mu.Lock()
	p := c.procs[id]
	if p == nil || p.Pid != pid {
		np, err := process.NewProcess(pid)
		if err != nil {
			c.mu.Unlock()
			return Usage{}, fmt.Errorf("open process: %w", err)
		}
		p = np
		c.procs[id] = p
	}
	c.mu.Unlock()

	cpu, err := p.CPUPercent()
	if err != nil {
		cpu = 0
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("memory info: %w", err)
	}
	threads, err := p.NumThreads()
	if err != nil {
		threads = 0
	}
	return Usage{PID: pid, CPUPercent: cpu, MemoryRSS: mem.RSS, NumThreads: threads, SampledAt: at}, nil
}
