package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

type onlineCounter interface {
	Count() int
}

// ReporterWorker logs a periodic snapshot of the gateway: connected
// sessions plus the process's own memory and CPU footprint.
type ReporterWorker struct {
	log      *slog.Logger
	presence onlineCounter
	interval time.Duration
}

func NewReporterWorker(log *slog.Logger, presence onlineCounter, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, presence: presence, interval: interval}
}

func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

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
			w.log.Info("Gateway status",
				"online_sessions", w.presence.Count(),
				"ram_bytes", rss,
				"cpu_percent", cpu,
			)
		}
	}
}

// selfStats retrieves memory and CPU metrics for the given process.
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
