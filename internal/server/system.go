package server

import (
	"net/http"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/firewatch/detection-server/internal/logger"
)

// handleSystemStatus reports a host snapshot for the dashboard's health
// panel. Every probe is independent: a failing one logs and reports zero
// instead of failing the response.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var cpuPercent float64
	// Interval 0 measures since the previous call, so the handler never
	// sleeps; the first call after boot reports 0.
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		cpuPercent = percentages[0]
	} else if err != nil {
		logger.Warn("System", "CPU stats unavailable: %v", err)
	}

	var ramUsedMB, ramTotalMB float64
	if vMem, err := mem.VirtualMemory(); err == nil {
		// Total - Available excludes the page cache, which the kernel gives
		// back on demand.
		ramUsedMB = float64(vMem.Total-vMem.Available) / 1024.0 / 1024.0
		ramTotalMB = float64(vMem.Total) / 1024.0 / 1024.0
	} else {
		logger.Warn("System", "Memory stats unavailable: %v", err)
	}

	var diskUsedGB, diskTotalGB float64
	if usage, err := disk.Usage("/"); err == nil {
		diskUsedGB = float64(usage.Used) / 1024.0 / 1024.0 / 1024.0
		diskTotalGB = float64(usage.Total) / 1024.0 / 1024.0 / 1024.0
	} else {
		logger.Warn("System", "Disk stats unavailable: %v", err)
	}

	writeJSON(w, map[string]any{
		"status": "success",
		"data": map[string]any{
			"cpu_percent":   cpuPercent,
			"ram_used_mb":   ramUsedMB,
			"ram_total_mb":  ramTotalMB,
			"disk_used_gb":  diskUsedGB,
			"disk_total_gb": diskTotalGB,
		},
	})
}
