// Package health provides HTTP liveness and readiness handlers.
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when every registered
//     check passes.
//
// Responses are JSON with a top-level "status" ("ok" or "fail") and a
// "checks" map carrying each check's outcome and latency. Checks run
// concurrently, so a slow dependency cannot starve the probe of the others'
// results.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// CheckFunc probes one dependency. It must respect context cancellation and
// return nil when the dependency is healthy.
type CheckFunc func(ctx context.Context) error

// check pairs a registered name with its probe.
type check struct {
	name  string
	probe CheckFunc
}

// checkResult is one check's JSON entry.
type checkResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// response is the JSON body of both endpoints.
type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. Register all checks
// before serving; the handler itself is safe for concurrent use.
type Handler struct {
	checks []check
}

// New creates an empty [Handler]. Use [Handler.AddCheck] to register
// readiness checks.
func New() *Handler {
	return &Handler{}
}

// AddCheck registers a named readiness check, evaluated on every /readyz
// request. Names appear as keys in the JSON response.
func (h *Handler) AddCheck(name string, probe CheckFunc) {
	h.checks = append(h.checks, check{name: name, probe: probe})
}

// Healthz is the liveness probe. A process that can serve HTTP is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs every registered check concurrently and returns 200 only when
// all of them pass. Each check gets its own [checkTimeout] deadline derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu      sync.Mutex
		results = make(map[string]checkResult, len(h.checks))
		healthy = true
	)

	g, ctx := errgroup.WithContext(r.Context())
	for _, c := range h.checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			started := time.Now()
			err := c.probe(probeCtx)
			elapsed := time.Since(started)

			res := checkResult{Status: "ok", Duration: elapsed.Round(time.Millisecond).String()}
			mu.Lock()
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
				healthy = false
			}
			results[c.name] = res
			mu.Unlock()
			return nil
		})
	}
	// Check failures are reported in the body, never as a group error.
	_ = g.Wait()

	resp := response{Status: "ok", Checks: results}
	status := http.StatusOK
	if !healthy {
		resp.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is already sent; an encode failure can only be logged.
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: response not written", "error", err)
	}
}
