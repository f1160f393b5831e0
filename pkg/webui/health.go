package webui

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/version"
)

// ProcessStats is a sample of the serving process's resource usage.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

// Health is the body of GET /healthz.
type Health struct {
	Status             string        `json:"status"`
	Version            version.Info  `json:"version"`
	UptimeSeconds      int64         `json:"uptimeSeconds"`
	Skills             int           `json:"skills"`
	PendingAutoRejects int           `json:"pendingAutoRejects"`
	Process            *ProcessStats `json:"process,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:             "ok",
		Version:            version.Get(),
		UptimeSeconds:      int64(time.Since(s.startedAt).Seconds()),
		Skills:             s.registry.Len(),
		PendingAutoRejects: s.registry.PendingAutoRejects(),
	}

	stats, err := sampleProcess(r.Context())
	if err != nil {
		logger.G(r.Context()).WithError(err).Debug("failed to sample process stats")
	} else {
		h.Process = stats
	}

	s.writeJSONResponse(w, r, http.StatusOK, h)
}

func sampleProcess(ctx context.Context) (*ProcessStats, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	stats := &ProcessStats{PID: p.Pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		stats.Threads = n
	}
	return stats, nil
}
