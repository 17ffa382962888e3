package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/api"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/broadcast"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/eventsink"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/scheduler"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/store"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/telemetry"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/upstream"
)

// SchedulerStatus is the slice of the scheduler the transport needs.
type SchedulerStatus interface {
	Status() scheduler.Status
}

// HandlerDeps collects the collaborators behind the endpoints.
type HandlerDeps struct {
	Service   *api.Service
	Hub       *broadcast.Hub
	Scheduler SchedulerStatus
	Store     store.Store
	Sampler   *telemetry.Sampler
	Sink      eventsink.Sink
	Adapters  []upstream.Adapter
	Version   string
	// SnapshotStaleAfter marks the snapshot degraded in health output once
	// it is older than this. Zero means the cache TTL default.
	SnapshotStaleAfter time.Duration
}

// Handlers implements every endpoint of the transport layer.
type Handlers struct {
	deps    HandlerDeps
	started time.Time
	logger  zerolog.Logger
}

// NewHandlers creates the endpoint set.
func NewHandlers(deps HandlerDeps, logger zerolog.Logger) *Handlers {
	if deps.SnapshotStaleAfter <= 0 {
		deps.SnapshotStaleAfter = 30 * time.Second
	}
	if deps.Sink == nil {
		deps.Sink = eventsink.Noop{}
	}
	return &Handlers{
		deps:    deps,
		started: time.Now(),
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// errorBody is the wire shape of every non-2xx JSON response.
type errorBody struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone; nothing useful left to send.
		return
	}
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, Timestamp: time.Now().UTC()})
}

// Tokens serves GET /api/tokens.
func (h *Handlers) Tokens(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	page, err := h.deps.Service.GetAll(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// TokenByAddress serves GET /api/tokens/{address}.
func (h *Handlers) TokenByAddress(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	token, err := h.deps.Service.GetByAddress(r.Context(), address)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// NotFound answers unmatched routes in the same JSON shape as the API.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint not found")
}

// MethodNotAllowed answers wrong-method requests on known routes.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// writeServiceError maps domain errors onto HTTP statuses: invalid input is
// the caller's fault, an unknown address is 404, everything else means the
// read path itself is unhealthy.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errs.IsValidation(err):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, api.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "token not found")
	case errors.Is(err, api.ErrNoSnapshot):
		writeError(w, r, http.StatusInternalServerError, "no snapshot available yet")
	case errs.IsCacheUnavailable(err):
		writeError(w, r, http.StatusInternalServerError, "cache unavailable")
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", RequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Unclassified handler error")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// parseQuery maps URL parameters onto the read API query. Numeric fields
// that fail to parse are rejected here; range and enum checks belong to the
// service.
func parseQuery(r *http.Request) (api.Query, error) {
	values := r.URL.Query()
	query := api.Query{
		Protocol:   values.Get("protocol"),
		TimePeriod: values.Get("time_period"),
		SortBy:     values.Get("sort_by"),
		SortOrder:  values.Get("sort_order"),
	}

	var err error
	if query.MinLiquidity, err = floatParam(values.Get("min_liquidity"), "min_liquidity"); err != nil {
		return api.Query{}, err
	}
	if query.MinVolume, err = floatParam(values.Get("min_volume"), "min_volume"); err != nil {
		return api.Query{}, err
	}
	if query.Limit, err = intParam(values.Get("limit"), "limit"); err != nil {
		return api.Query{}, err
	}
	if query.Cursor, err = intParam(values.Get("cursor"), "cursor"); err != nil {
		return api.Query{}, err
	}
	return query, nil
}

func floatParam(raw, field string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &errs.ValidationError{Field: field, Reason: "must be a number"}
	}
	return v, nil
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &errs.ValidationError{Field: field, Reason: "must be an integer"}
	}
	return v, nil
}
