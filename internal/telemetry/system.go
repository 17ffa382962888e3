package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats is one resource reading, kept for the health endpoint.
type SystemStats struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemUsedBytes   uint64    `json:"memory_used_bytes"`
	MemUsedPercent float64   `json:"memory_used_percent"`
	HeapAllocBytes uint64    `json:"heap_alloc_bytes"`
	Goroutines     int       `json:"goroutines"`
	SampledAt      time.Time `json:"sampled_at"`
}

// Sampler periodically reads host and runtime resource usage into the
// system gauges. One sampler serves the whole process.
type Sampler struct {
	metrics  *Metrics
	interval time.Duration
	logger   zerolog.Logger

	mu   sync.RWMutex
	last SystemStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSampler creates a sampler that writes into m's system gauges.
func NewSampler(m *Metrics, interval time.Duration, logger zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sampler{
		metrics:  m,
		interval: interval,
		logger:   logger.With().Str("component", "system_sampler").Logger(),
	}
}

// Start launches the sampling loop. The first reading happens immediately.
func (s *Sampler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sample()
		for {
			select {
			case <-ticker.C:
				s.sample()
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("System sampler started")
}

// Stop halts the loop and waits for it to finish.
func (s *Sampler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// Stats returns the most recent reading.
func (s *Sampler) Stats() SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Sampler) sample() {
	stats := SystemStats{
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	}

	// Instantaneous usage since the previous call.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	} else if err != nil {
		s.logger.Debug().Err(err).Msg("CPU sample failed")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedBytes = vm.Used
		stats.MemUsedPercent = vm.UsedPercent
	} else {
		s.logger.Debug().Err(err).Msg("Memory sample failed")
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.HeapAllocBytes = ms.HeapAlloc

	s.mu.Lock()
	s.last = stats
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SysCPUPercent.Set(stats.CPUPercent)
		s.metrics.SysMemUsed.Set(float64(stats.MemUsedBytes))
		s.metrics.SysHeapAlloc.Set(float64(stats.HeapAllocBytes))
		s.metrics.SysGoroutines.Set(float64(stats.Goroutines))
	}
}
