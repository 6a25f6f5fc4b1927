package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"
)

//go:embed templates/*
var templates embed.FS

// Stats holds the worker statistics (pure data, no mutex)
type Stats struct {
	// Loop state
	Paused       bool `json:"paused"`
	ActiveCycles int  `json:"activeCycles"`

	// Cycle statistics
	TodayCyclesCompleted int `json:"todayCyclesCompleted"`
	CyclesCompleted      int `json:"cyclesCompleted"`
	CyclesFailed         int `json:"cyclesFailed"`
	Timeouts             int `json:"timeouts"`
	Faults               int `json:"faults"`
	EmptyPops            int `json:"emptyPops"`
	PopErrors            int `json:"popErrors"`

	// Output statistics
	TotalImages    int     `json:"totalImages"`
	TotalKudos     float64 `json:"totalKudos"`
	AvgKudosPerJob float64 `json:"avgKudosPerJob"`

	LastJobID string    `json:"lastJobId,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	LastPopAt time.Time `json:"lastPopAt,omitempty"`

	// Session info
	WorkerName string    `json:"workerName"`
	HordeURL   string    `json:"hordeUrl"`
	Threads    int       `json:"threads"`
	StartTime  time.Time `json:"startTime"`
}

// Dashboard manages the worker dashboard
type Dashboard struct {
	mu         sync.RWMutex
	stats      Stats
	pauseFunc  func() error
	resumeFunc func() error
}

// NewDashboard creates a new dashboard instance
func NewDashboard(workerName, hordeURL string, threads int) *Dashboard {
	return &Dashboard{
		stats: Stats{
			WorkerName: workerName,
			HordeURL:   hordeURL,
			Threads:    threads,
			StartTime:  time.Now(),
		},
	}
}

// SetPauseFunc sets the function to call when a pause is requested
func (d *Dashboard) SetPauseFunc(f func() error) {
	d.pauseFunc = f
}

// SetResumeFunc sets the function to call when a resume is requested
func (d *Dashboard) SetResumeFunc(f func() error) {
	d.resumeFunc = f
}

// UpdatePaused records whether the worker is pulling new jobs
func (d *Dashboard) UpdatePaused(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Paused = paused
}

// CycleStarted records a popped job entering its cycle
func (d *Dashboard) CycleStarted(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.ActiveCycles++
	d.stats.LastJobID = jobID
	d.stats.LastPopAt = time.Now()
}

// RecordCycleCompleted records a finished cycle
func (d *Dashboard) RecordCycleCompleted(images int, kudos float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.ActiveCycles--
	d.stats.CyclesCompleted++
	d.stats.TodayCyclesCompleted++
	d.stats.TotalImages += images
	d.stats.TotalKudos += kudos
	d.recomputeAverages()
}

// RecordCycleFailed records a failed cycle. timeout and fault are counted
// separately as well.
func (d *Dashboard) RecordCycleFailed(err error, timeout, fault bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.ActiveCycles--
	d.stats.CyclesFailed++
	if timeout {
		d.stats.Timeouts++
	}
	if fault {
		d.stats.Faults++
	}
	if err != nil {
		d.stats.LastError = err.Error()
	}
}

// RecordEmptyPop records a pop that found no work
func (d *Dashboard) RecordEmptyPop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.EmptyPops++
	d.stats.LastPopAt = time.Now()
}

// RecordPopError records a pop that failed
func (d *Dashboard) RecordPopError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.PopErrors++
	d.stats.LastError = err.Error()
}

// LoadHistoricalStats initializes stats with historical data from the database
func (d *Dashboard) LoadHistoricalStats(completed, failed, images int, kudos float64, todayCompleted int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.CyclesCompleted = completed
	d.stats.CyclesFailed = failed
	d.stats.TotalImages = images
	d.stats.TotalKudos = kudos
	d.stats.TodayCyclesCompleted = todayCompleted
	d.recomputeAverages()
}

func (d *Dashboard) recomputeAverages() {
	if d.stats.CyclesCompleted > 0 {
		d.stats.AvgKudosPerJob = d.stats.TotalKudos / float64(d.stats.CyclesCompleted)
	}
}

// GetStats returns a copy of the current stats
func (d *Dashboard) GetStats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// Handler returns the dashboard routes.
func (d *Dashboard) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/stats", d.handleStats)
	mux.HandleFunc("/api/pause", d.handleControl("pause", func() func() error { return d.pauseFunc }))
	mux.HandleFunc("/api/resume", d.handleControl("resume", func() func() error { return d.resumeFunc }))
	mux.HandleFunc("/api/ws", d.handleLive)

	// Static files (CSS, JS)
	staticFS, err := fs.Sub(templates, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to create sub filesystem: %w", err)
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Index page
	mux.HandleFunc("/", d.handleIndex)

	return mux, nil
}

// ServeHTTP starts the HTTP dashboard server. It shuts down gracefully when ctx is cancelled.
func (d *Dashboard) ServeHTTP(ctx context.Context, addr string) error {
	handler, err := d.Handler()
	if err != nil {
		return err
	}

	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("[dashboard] Starting dashboard server on %s", addr)
	err = server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleStats returns the current statistics as JSON
func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := d.GetStats()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("[dashboard] Failed to encode stats: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
}

// handleControl runs a pause/resume callback
func (d *Dashboard) handleControl(name string, get func() func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		f := get()
		if f == nil {
			http.Error(w, name+" function not configured", http.StatusInternalServerError)
			return
		}

		log.Printf("[dashboard] Manual %s requested", name)

		if err := f(); err != nil {
			log.Printf("[dashboard] %s failed: %v", name, err)
			http.Error(w, fmt.Sprintf("%s failed: %v", name, err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "action": name})
	}
}

// handleIndex serves the dashboard HTML page
func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data, err := templates.ReadFile("templates/index.html")
	if err != nil {
		log.Printf("[dashboard] Failed to read index.html: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}
