package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aristath/portfolio-tracker/internal/database"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// TransactionCounter counts imported transactions
type TransactionCounter interface {
	Count(ctx context.Context) (int, error)
}

// TickerLister lists resolved tickers
type TickerLister interface {
	List(ctx context.Context) ([]domain.Ticker, error)
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log          zerolog.Logger
	dataDir      string
	startupTime  time.Time
	databases    []*database.DB
	transactions TransactionCounter
	tickers      TickerLister
	scheduler    *scheduler.Scheduler
	jobs         map[string]scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance. sched may be
// nil when no scheduler is running; jobs then run inline on trigger.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	transactions TransactionCounter,
	tickers TickerLister,
	sched *scheduler.Scheduler,
	jobs []scheduler.Job,
) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, job := range jobs {
		byName[job.Name()] = job
	}

	return &SystemHandlers{
		log:          log.With().Str("component", "system_handlers").Logger(),
		dataDir:      dataDir,
		startupTime:  time.Now(),
		databases:    databases,
		transactions: transactions,
		tickers:      tickers,
		scheduler:    sched,
		jobs:         byName,
	}
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status           string                     `json:"status"`
	UptimeSeconds    int64                      `json:"uptime_seconds"`
	CPUPercent       float64                    `json:"cpu_percent"`
	MemoryPercent    float64                    `json:"memory_percent"`
	TransactionCount int                        `json:"transaction_count"`
	TickerCount      int                        `json:"ticker_count"`
	PricedTickers    int                        `json:"priced_tickers"`
	LastPriceUpdate  *time.Time                 `json:"last_price_update,omitempty"`
	Databases        map[string]*database.Stats `json:"databases"`
	Jobs             []string                   `json:"jobs"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	BackupsMB   float64 `json:"backups_mb"`
	AvailableMB float64 `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// GetSystemStatusSnapshot collects the current system status. The first
// query error is returned alongside whatever could still be collected.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) (SystemStatusResponse, error) {
	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     scheduler.DatabaseStats(h.databases...),
		Jobs:          h.jobNames(),
	}

	count, err := h.transactions.Count(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count transactions")
		recordErr(err)
	}
	response.TransactionCount = count

	list, err := h.tickers.List(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tickers")
		recordErr(err)
	}
	response.TickerCount = len(list)
	for _, t := range list {
		if !t.LastPrice.Valid {
			continue
		}
		response.PricedTickers++
		if t.LastPriceUpdatedAt != nil && (response.LastPriceUpdate == nil || t.LastPriceUpdatedAt.After(*response.LastPriceUpdate)) {
			response.LastPriceUpdate = t.LastPriceUpdatedAt
		}
	}

	if firstErr != nil {
		response.Status = "degraded"
	}
	return response, firstErr
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response, err := h.GetSystemStatusSnapshot(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("System status collected with warnings")
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns per-database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := scheduler.DatabaseStats(h.databases...)

	var totalBytes int64
	for _, s := range stats {
		totalBytes += s.SizeBytes + s.WALSizeBytes
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":     stats,
		"total_size_mb": float64(totalBytes) / 1024 / 1024,
		"last_checked":  time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
		BackupsMB: h.getDirSize(filepath.Join(h.dataDir, "backups")),
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		response.AvailableMB = float64(usage.Free) / 1024 / 1024
		response.UsedPercent = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get filesystem usage")
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus lists the registered jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	names := h.jobNames()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  names,
		"count": len(names),
	})
}

// HandleTriggerJob runs a job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	var err error
	if h.scheduler != nil {
		err = h.scheduler.RunNow(job)
	} else {
		err = job.Run()
	}
	if err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Triggered job failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status": "error",
			"job":    name,
			"error":  err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"job":    name,
	})
}

func (h *SystemHandlers) jobNames() []string {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled
// over 100ms to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
