package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemHealth handles GET /api/system/health
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := s.db.HealthCheck(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Database health check failed")
		dbStatus = err.Error()
	}

	cpuAvg, ramPercent := s.systemStats()

	status := "healthy"
	if dbStatus != "ok" {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"database":    dbStatus,
		"db_path":     s.db.Path(),
		"cpu_percent": cpuAvg,
		"ram_percent": ramPercent,
		"sync":        s.engine.Status(),
	})
}

// systemStats returns CPU and RAM usage percentages. The 100ms CPU
// sampling window keeps the endpoint fast enough for UI polling.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
