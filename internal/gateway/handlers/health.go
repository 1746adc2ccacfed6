package handlers

import (
	"net/http"
	"sync"
	"time"

	"runbox/internal/jsvm"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime initializes the server start time.
// Should be called when the server starts.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// PoolReporter exposes VM pool statistics.
type PoolReporter interface {
	PoolStats() jsvm.PoolStats
}

// PoolStatus is the pool section of the health response.
type PoolStatus struct {
	MaxSize int `json:"max_size"`
	Active  int `json:"active"`
	Warm    int `json:"warm"`
	Created int `json:"created"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  int64       `json:"uptime"`
	Pool    *PoolStatus `json:"pool,omitempty"`
}

// HealthHandler returns a health check handler. pool may be nil.
func HealthHandler(version string, pool PoolReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(0)
		if !startTime.IsZero() {
			uptime = int64(time.Since(startTime).Seconds())
		}

		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  uptime,
		}
		if pool != nil {
			st := pool.PoolStats()
			resp.Pool = &PoolStatus{
				MaxSize: st.MaxSize,
				Active:  st.Active,
				Warm:    st.Warm,
				Created: st.Created,
			}
		}

		SendJSON(w, http.StatusOK, resp)
	}
}
