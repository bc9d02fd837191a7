package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole probe run.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency the service cannot run without.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// PingProbe adapts a ping function (store, queue) to HealthProbe.
type PingProbe struct {
	ProbeName string
	Ping      func(ctx context.Context) error
}

// Name implements HealthProbe.
func (p PingProbe) Name() string { return p.ProbeName }

// Check implements HealthProbe.
func (p PingProbe) Check(ctx context.Context) error { return p.Ping(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently under a 2 second deadline.
// It answers 200 when all probes pass and 503 otherwise. A probe that does
// not return before the deadline is reported as timed out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// Buffered so a probe that outlives the deadline never blocks.
	results := make([]chan error, len(probes))
	for i, probe := range probes {
		results[i] = make(chan error, 1)
		go func(done chan<- error) {
			done <- runProbe(ctx, probe)
		}(results[i])
	}

	resp.Components = make(map[string]componentStatus, len(probes))
	status := http.StatusOK
	for i, probe := range probes {
		var err error
		select {
		case err = <-results[i]:
		case <-ctx.Done():
			err = fmt.Errorf("health check timed out")
		}

		if err != nil {
			status = http.StatusServiceUnavailable
			resp.Components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		resp.Components[probe.Name()] = componentStatus{Status: "healthy"}
	}

	if status != http.StatusOK {
		resp.Status = "unhealthy"
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
