package http

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/eventsink"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/scheduler"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/telemetry"
)

// Health statuses, ordered worst to best.
const (
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
	statusHealthy   = "healthy"
)

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Version   string    `json:"version,omitempty"`

	Scheduler scheduler.Status      `json:"scheduler"`
	Snapshot  SnapshotHealth        `json:"snapshot"`
	WebSocket WebSocketHealth       `json:"websocket"`
	Upstreams map[string]string     `json:"upstreams"`
	EventSink EventSinkHealth       `json:"event_sink"`
	System    telemetry.SystemStats `json:"system"`
}

// SnapshotHealth describes the served snapshot's freshness.
type SnapshotHealth struct {
	Present    bool      `json:"present"`
	Tokens     int       `json:"tokens"`
	UpdatedAt  time.Time `json:"updated_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Stale      bool      `json:"stale"`
}

// WebSocketHealth counts the live subscriber population.
type WebSocketHealth struct {
	Clients       int `json:"clients"`
	Subscriptions int `json:"subscriptions"`
}

// EventSinkHealth reports the optional NATS mirror.
type EventSinkHealth struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// breakerReporter is implemented by upstream adapters carrying a circuit.
type breakerReporter interface {
	BreakerState() gobreaker.State
}

// Health serves GET /health. Degraded conditions still answer 200 so
// orchestrators keep routing; only a dead pipeline reports 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := h.gatherHealth(r)

	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, code, resp)
}

func (h *Handlers) gatherHealth(r *http.Request) HealthResponse {
	now := time.Now().UTC()

	resp := HealthResponse{
		Timestamp: now,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.deps.Version,
		Upstreams: make(map[string]string, len(h.deps.Adapters)),
	}

	if h.deps.Scheduler != nil {
		resp.Scheduler = h.deps.Scheduler.Status()
	}

	snapReadFailed := false
	if h.deps.Store != nil {
		snap, err := h.deps.Store.Get(r.Context())
		switch {
		case err != nil:
			snapReadFailed = true
		case snap != nil:
			age := now.Sub(snap.UpdatedAt)
			resp.Snapshot = SnapshotHealth{
				Present:    true,
				Tokens:     snap.Len(),
				UpdatedAt:  snap.UpdatedAt,
				AgeSeconds: age.Seconds(),
				Stale:      age > h.deps.SnapshotStaleAfter,
			}
		}
	}

	if h.deps.Hub != nil {
		resp.WebSocket = WebSocketHealth{
			Clients:       h.deps.Hub.ClientCount(),
			Subscriptions: h.deps.Hub.SubscriptionCount(),
		}
	}

	breakerOpen := false
	for _, a := range h.deps.Adapters {
		reporter, ok := a.(breakerReporter)
		if !ok {
			continue
		}
		state := reporter.BreakerState()
		resp.Upstreams[a.Tag()] = state.String()
		if state != gobreaker.StateClosed {
			breakerOpen = true
		}
	}

	_, noop := h.deps.Sink.(eventsink.Noop)
	resp.EventSink = EventSinkHealth{
		Enabled:   !noop,
		Connected: h.deps.Sink.Connected(),
	}

	if h.deps.Sampler != nil {
		resp.System = h.deps.Sampler.Stats()
	}

	resp.Status = overallStatus(resp, snapReadFailed, breakerOpen)
	return resp
}

// overallStatus folds the component states into one verdict. The pipeline is
// unhealthy when it cannot serve reads at all; anything recoverable is
// degraded.
func overallStatus(resp HealthResponse, snapReadFailed, breakerOpen bool) string {
	if snapReadFailed {
		return statusUnhealthy
	}
	if !resp.Scheduler.Running {
		return statusUnhealthy
	}
	if !resp.Snapshot.Present || resp.Snapshot.Stale {
		return statusDegraded
	}
	if resp.Scheduler.LastTickResult == "aborted" || resp.Scheduler.LastTickResult == "partial" {
		return statusDegraded
	}
	if breakerOpen {
		return statusDegraded
	}
	if resp.EventSink.Enabled && !resp.EventSink.Connected {
		return statusDegraded
	}
	return statusHealthy
}
