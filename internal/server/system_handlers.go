package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, db := range s.cfg.Databases {
		if err := db.HealthCheck(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":   "unhealthy",
				"database": db.Name(),
				"error":    err.Error(),
			})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "ditm",
	})
}

// SystemStatusResponse reports host and process level statistics.
type SystemStatusResponse struct {
	CPUPercent  float64 `json:"cpu_percent"`
	RAMPercent  float64 `json:"ram_percent"`
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	GoVersion   string  `json:"go_version"`
	// LastFetch is the time of the last scan that reached the market data
	// gateway, empty until a scan has succeeded.
	LastFetch string `json:"last_successful_fetch,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPct := s.systemStats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := SystemStatusResponse{
		CPUPercent:  cpuAvg,
		RAMPercent:  ramPct,
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(memStats.HeapAlloc) / 1024 / 1024,
		GoVersion:   runtime.Version(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if at, err := s.cfg.ScanCache.LastFetchSuccess(); err == nil {
		response.LastFetch = at.Format(time.RFC3339)
	}

	s.writeJSON(w, http.StatusOK, response)
}

// systemStats returns CPU and RAM usage percentages. A 100ms sampling
// window keeps the endpoint responsive for pollers.
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

// DBInfo describes a single database file on disk.
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// DatabaseStatsResponse summarizes all databases.
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := []DBInfo{}
	totalSizeMB := 0.0

	for _, db := range s.cfg.Databases {
		info, err := os.Stat(db.Path())
		if err != nil {
			continue
		}
		sizeMB := float64(info.Size()) / 1024 / 1024
		totalSizeMB += sizeMB
		infos = append(infos, DBInfo{
			Name:   db.Name(),
			Path:   db.Path(),
			SizeMB: sizeMB,
		})
	}

	s.writeJSON(w, http.StatusOK, DatabaseStatsResponse{
		Databases:   infos,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	})
}

// DiskUsageResponse reports sizes of the data directories in MB.
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	BackupsMB float64 `json:"backups_mb"`
	TotalMB   float64 `json:"total_mb"`
}

func (s *Server) handleDiskUsage(w http.ResponseWriter, r *http.Request) {
	dataSize := s.dirSizeMB(s.cfg.DataDir)
	backupsSize := s.dirSizeMB(filepath.Join(s.cfg.DataDir, "backups"))

	s.writeJSON(w, http.StatusOK, DiskUsageResponse{
		DataDirMB: dataSize,
		BackupsMB: backupsSize,
		TotalMB:   dataSize + backupsSize,
	})
}

func (s *Server) dirSizeMB(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
