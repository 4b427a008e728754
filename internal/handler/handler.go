package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"conflux/internal/adapter"
	"conflux/internal/codec"
	"conflux/internal/deploy"
	"conflux/internal/repository"
	"conflux/internal/service"
	"conflux/internal/view"
)

// BatchSource exposes in-flight deployment batches to the API.
type BatchSource interface {
	Batch(id string) *deploy.Batch
	Cancel(id string) error
}

// Handler handles orchestrator API requests
type Handler struct {
	orch    *service.Orchestrator
	batches BatchSource
	sink    adapter.CallbackSink
	store   repository.Store
	events  http.Handler
}

// New creates a new API handler
func New(orch *service.Orchestrator, batches BatchSource, sink adapter.CallbackSink) *Handler {
	return &Handler{orch: orch, batches: batches, sink: sink}
}

// SetStore sets the audit store backing the history endpoints
func (h *Handler) SetStore(s repository.Store) {
	h.store = s
}

// SetEventStream sets the SSE endpoint handler
func (h *Handler) SetEventStream(events http.Handler) {
	h.events = events
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Router builds the API route table
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/requests", h.SubmitRequest).Methods(http.MethodPost)
	r.HandleFunc("/api/requests", h.ListRequests).Methods(http.MethodGet)
	r.HandleFunc("/api/requests/{id}", h.GetRequest).Methods(http.MethodGet)
	r.HandleFunc("/api/topology", h.GetTopology).Methods(http.MethodGet)
	r.HandleFunc("/api/batches", h.ListBatches).Methods(http.MethodGet)
	r.HandleFunc("/api/batches/{id}", h.GetBatch).Methods(http.MethodGet)
	r.HandleFunc("/api/batches/{id}/cancel", h.CancelBatch).Methods(http.MethodPost)
	r.HandleFunc("/api/callback/{correlation_id}", h.DomainCallback).Methods(http.MethodPost)
	if h.events != nil {
		r.Handle("/events", h.events)
	}
	return r
}

// SubmitRequest accepts a serialized service graph and starts its
// pipeline, answering 202 with the queryable request object
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, "Failed to read request body", err.Error(), http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatFromContentType(r.Header.Get("Content-Type"))
	}

	req, err := h.orch.Submit(body, format)
	if err != nil {
		h.writeError(w, "Failed to submit request", err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, req, http.StatusAccepted)
}

// ListRequests returns all known requests
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.orch.Requests(), http.StatusOK)
}

// GetRequest returns a single request's lifecycle state
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req := h.orch.Request(id)
	if req == nil {
		h.writeError(w, "Not found", "no request with id "+id, http.StatusNotFound)
		return
	}
	h.writeJSON(w, req, http.StatusOK)
}

// GetTopology exports a projection of the global view. The view query
// parameter selects the projection, the format parameter the encoding.
func (h *Handler) GetTopology(w http.ResponseWriter, r *http.Request) {
	kind := view.Global
	if v := r.URL.Query().Get("view"); v != "" {
		switch strings.ToUpper(v) {
		case string(view.Global):
			kind = view.Global
		case string(view.SingleBiSBiS):
			kind = view.SingleBiSBiS
		default:
			h.writeError(w, "Invalid view", "unknown projection "+v, http.StatusBadRequest)
			return
		}
	}

	proj, err := h.orch.Topology(kind)
	if err != nil {
		h.writeError(w, "Failed to build projection", err.Error(), http.StatusServiceUnavailable)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	c := codec.ForFormat(format)
	if c == nil {
		h.writeError(w, "Invalid format", "unknown format "+format, http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := c.Export(proj.Graph, &buf); err != nil {
		log.Printf("Failed to export topology: %v", err)
		h.writeError(w, "Failed to export topology", err.Error(), http.StatusInternalServerError)
		return
	}

	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/yaml")
	}
	w.Header().Set("X-View-Version", strconv.FormatUint(proj.Version, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("Failed to write topology response: %v", err)
	}
}

// ListBatches returns recent deployment batches from the audit trail
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, "History unavailable", "audit store not configured", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	recs, err := h.store.ListBatches(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to list batches: %v", err)
		h.writeError(w, "Failed to list batches", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, recs, http.StatusOK)
}

// GetBatch returns a deployment batch, live if still known to the
// coordinator, otherwise from the audit trail
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if b := h.batches.Batch(id); b != nil {
		h.writeJSON(w, b, http.StatusOK)
		return
	}

	if h.store != nil {
		rec, err := h.store.GetBatch(r.Context(), id)
		if err != nil {
			log.Printf("Failed to get batch: %v", err)
			h.writeError(w, "Failed to get batch", err.Error(), http.StatusInternalServerError)
			return
		}
		if rec != nil {
			h.writeJSON(w, rec, http.StatusOK)
			return
		}
	}

	h.writeError(w, "Not found", "no batch with id "+id, http.StatusNotFound)
}

// CancelBatch requests cancellation of an in-flight batch
func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.batches.Cancel(id); err != nil {
		h.writeError(w, "Failed to cancel batch", err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, map[string]string{"batch_id": id, "status": "cancelling"}, http.StatusAccepted)
}

// callbackBody is the payload a domain posts when its deployment settles
type callbackBody struct {
	Status adapter.Status `json:"status"`
}

// DomainCallback resolves a pending deployment by correlation id
func (h *Handler) DomainCallback(w http.ResponseWriter, r *http.Request) {
	correlation := mux.Vars(r)["correlation_id"]

	var body callbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if body.Status != adapter.StatusSuccess && body.Status != adapter.StatusFailure {
		h.writeError(w, "Invalid status", "status must be success or failure", http.StatusBadRequest)
		return
	}

	h.sink.Resolve(correlation, body.Status)
	w.WriteHeader(http.StatusNoContent)
}

func formatFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "yaml"):
		return "yaml"
	default:
		return "json"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
