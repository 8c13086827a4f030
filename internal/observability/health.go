package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "speakr"

// HealthStatus represents the health status of the daemon
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheckFunc reports whether one dependency is usable.
// Checks are passed in as functions to avoid import cycles.
type HealthCheckFunc func(ctx context.Context) (bool, error)

// HealthCheckHandler handles liveness requests
func HealthCheckHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

// RunChecks evaluates every named check and reports whether all passed
func RunChecks(ctx context.Context, checks map[string]HealthCheckFunc) (map[string]DependencyStatus, bool) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	dependencies := make(map[string]DependencyStatus, len(checks))
	allHealthy := true
	for _, name := range names {
		check := checks[name]
		if check == nil {
			continue
		}

		start := time.Now()
		healthy, err := check(ctx)
		latency := time.Since(start).Milliseconds()

		dep := DependencyStatus{Status: "healthy", LatencyMs: latency}
		if err != nil || !healthy {
			dep.Status = "unhealthy"
			allHealthy = false
			if err != nil {
				dep.Message = err.Error()
			}
		}
		dependencies[name] = dep
	}

	return dependencies, allHealthy
}

// ReadinessHandler handles readiness requests against the given checks
func ReadinessHandler(version string, checks map[string]HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dependencies, allHealthy := RunChecks(ctx, checks)

		status := HealthStatus{
			Status:       "ready",
			Service:      serviceName,
			Version:      version,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		w.Header().Set("Content-Type", "application/json")
		if !allHealthy {
			status.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	}
}

// GRPCHealth serves the standard gRPC health protocol backed by readiness checks
type GRPCHealth struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]HealthCheckFunc
	interval time.Duration
	logger   zerolog.Logger
	done     chan struct{}
}

// NewGRPCHealth creates a gRPC health service refreshed every interval
func NewGRPCHealth(checks map[string]HealthCheckFunc, interval time.Duration) *GRPCHealth {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: interval,
		logger:   Component("grpc-health"),
		done:     make(chan struct{}),
	}
}

// Refresh re-evaluates the checks and publishes per-dependency and overall status
func (g *GRPCHealth) Refresh(ctx context.Context) {
	dependencies, allHealthy := RunChecks(ctx, g.checks)
	for name, dep := range dependencies {
		g.health.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	g.health.SetServingStatus("", servingStatus(allHealthy))
}

// Serve listens on addr and blocks until Stop is called or serving fails
func (g *GRPCHealth) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	g.Refresh(ctx)
	go g.refreshLoop(ctx)

	g.logger.Info().Str("addr", addr).Msg("gRPC health service listening")
	return g.server.Serve(lis)
}

func (g *GRPCHealth) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			g.Refresh(checkCtx)
			cancel()
		}
	}
}

// Stop shuts the service down gracefully
func (g *GRPCHealth) Stop() {
	select {
	case <-g.done:
		return
	default:
		close(g.done)
	}
	g.health.Shutdown()
	g.server.GracefulStop()
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
