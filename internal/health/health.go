// Package health exposes watch-mode liveness and readiness over HTTP and the
// standard gRPC health service.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bloodlink.org/internal/obs"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "bms.donor.watch"

var errNoReload = errors.New("no reload completed yet")

// Probe tracks the outcome of the most recent view reload.
type Probe struct {
	mu      sync.RWMutex
	lastErr error
	lastAt  time.Time

	grpc *grpchealth.Server
}

// NewProbe starts out not ready until the first reload is recorded.
func NewProbe() *Probe {
	p := &Probe{lastErr: errNoReload, grpc: grpchealth.NewServer()}
	p.setServing(false)
	return p
}

// Record stores a reload result and flips readiness accordingly.
func (p *Probe) Record(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.lastAt = time.Now().UTC()
	p.mu.Unlock()
	obs.SetReady(err == nil)
	p.setServing(err == nil)
}

// Check returns the last reload error, or nil when ready.
func (p *Probe) Check(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Probe) setServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.grpc.SetServingStatus("", status)
	p.grpc.SetServingStatus(ServiceName, status)
}

// RegisterGRPC registers the standard health service on s.
func (p *Probe) RegisterGRPC(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, p.grpc)
}

// Shutdown marks every service NOT_SERVING so watchers see the exit.
func (p *Probe) Shutdown() {
	p.grpc.Shutdown()
}

// Handler serves /healthz, /readyz and /metrics.
func (p *Probe) Handler(version string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		p.mu.RLock()
		err, at := p.lastErr, p.lastAt
		p.mu.RUnlock()
		body := map[string]string{"status": "ready"}
		if !at.IsZero() {
			body["last_reload"] = at.Format(time.RFC3339)
		}
		if err != nil {
			body["status"] = "not_ready"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.Handle("/metrics", obs.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
