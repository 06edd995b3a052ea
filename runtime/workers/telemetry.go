package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"relaychat/observability"
	"relaychat/runtime"
)

// TelemetryWorker periodically logs process health (RSS, CPU) alongside the
// realtime counters, so an operator tailing the logs can see pressure build
// before clients do.
type TelemetryWorker struct {
	registry *runtime.Registry
	monitor  *observability.Monitor
	interval time.Duration
	log      *slog.Logger
}

func NewTelemetryWorker(
	registry *runtime.Registry,
	monitor *observability.Monitor,
	interval time.Duration,
	log *slog.Logger,
) *TelemetryWorker {
	return &TelemetryWorker{registry: registry, monitor: monitor, interval: interval, log: log}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			snapshot := w.monitor.Snapshot()
			w.log.Info("Telemetry",
				"connections", w.registry.Len(),
				"rss_bytes", rss,
				"cpu_percent", cpu,
				"broadcasts", snapshot["broadcasts"],
				"evictions", snapshot["evictions"],
				"breaker_trips", snapshot["breaker_trips"])
		}
	}
}

// selfStats retrieves memory and CPU usage of this process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
