package handler

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) HealthCheckResult
}

// Ready runs every check in parallel and reports 503 unless all are up.
func Ready(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make(map[string]HealthCheckResult, len(checks))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, c := range checks {
			wg.Add(1)
			go func(c HealthCheck) {
				defer wg.Done()
				res := c.Check(ctx)
				mu.Lock()
				results[c.Name] = res
				mu.Unlock()
			}(c)
		}
		wg.Wait()

		allHealthy := true
		for _, res := range results {
			if res.Status != "up" {
				allHealthy = false
			}
		}

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    results,
		}

		status := http.StatusOK
		response["status"] = "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}
		writeJSON(w, status, response)
	}
}

// DatabaseCheck pings the postgres pool.
func DatabaseCheck(db *sql.DB) HealthCheck {
	return HealthCheck{Name: "database", Check: func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := db.PingContext(ctx)
		latency := time.Since(start)

		if err != nil {
			return HealthCheckResult{
				Status:    "down",
				LatencyMs: latency.Milliseconds(),
				Error:     err.Error(),
			}
		}

		stats := db.Stats()
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: latency.Milliseconds(),
			Metadata: map[string]any{
				"connections_open":   stats.OpenConnections,
				"connections_in_use": stats.InUse,
				"connections_idle":   stats.Idle,
				"max_open":           stats.MaxOpenConnections,
			},
		}
	}}
}

// BadgerCheck verifies the embedded store is open and readable.
func BadgerCheck(db *badger.DB) HealthCheck {
	return HealthCheck{Name: "badger", Check: func(ctx context.Context) HealthCheckResult {
		if db.IsClosed() {
			return HealthCheckResult{Status: "down", Error: "database closed"}
		}

		start := time.Now()
		err := db.View(func(txn *badger.Txn) error { return nil })
		if err != nil {
			return HealthCheckResult{Status: "down", Error: err.Error()}
		}

		lsm, vlog := db.Size()
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: time.Since(start).Milliseconds(),
			Metadata: map[string]any{
				"lsm_bytes":  lsm,
				"vlog_bytes": vlog,
			},
		}
	}}
}

// ConnectionState is satisfied by *messaging.RabbitMQ.
type ConnectionState interface {
	IsClosed() bool
}

// RabbitMQCheck reports whether the relay connection is open.
func RabbitMQCheck(rmq ConnectionState) HealthCheck {
	return HealthCheck{Name: "rabbitmq", Check: func(ctx context.Context) HealthCheckResult {
		if rmq.IsClosed() {
			return HealthCheckResult{
				Status: "down",
				Error:  "connection closed",
			}
		}
		return HealthCheckResult{Status: "up"}
	}}
}
