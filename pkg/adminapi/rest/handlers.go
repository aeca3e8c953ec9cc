// Package rest is the admin REST surface named in spec.md §6.3's
// collaborator contracts: it exposes the index registry's lifecycle
// operations (create/drop/enumerate, plus a health check) over HTTP for operators, the
// way the teacher's pkg/api/rest exposed its gRPC vector service.
package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/annexsearch/vecann/pkg/observability"
	"github.com/annexsearch/vecann/pkg/registry"
	"github.com/annexsearch/vecann/pkg/sqlext"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// Handler serves the admin REST surface against a live Registry.
type Handler struct {
	reg     *registry.Registry
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewHandler creates a Handler bound to reg.
func NewHandler(reg *registry.Registry, metrics *observability.Metrics, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NewDefaultLogger()
	}
	return &Handler{reg: reg, metrics: metrics, logger: logger}
}

// HealthCheck handles GET /v1/health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// createIndexRequest is the JSON body of POST /v1/indexes.
type createIndexRequest struct {
	Table          string `json:"table"`
	Column         string `json:"column"`
	Kind           string `json:"kind"`
	Metric         string `json:"metric"`
	M              int    `json:"m"`
	EfConstruction int    `json:"ef_construction"`
	EfSearch       int    `json:"ef_search"`
	Quantization   string `json:"quantization"`
	Seed           *int64 `json:"seed,omitempty"`
	Dimension      int    `json:"dimension"`
}

// CreateIndex handles POST /v1/indexes, the DDL-equivalent admin
// operation behind CREATE VECTOR INDEX (spec.md §6.1).
func (h *Handler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordError("CreateIndex", "bad_request")
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	method, err := sqlext.ParseIndexMethod(req.Kind)
	if err != nil {
		h.recordError("CreateIndex", "validation")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts, err := sqlext.ParseIndexOptions(map[string]string{
		"metric":          req.Metric,
		"m":               strconv.Itoa(req.M),
		"ef_construction": strconv.Itoa(req.EfConstruction),
		"ef_search":       strconv.Itoa(req.EfSearch),
		"quantization":    req.Quantization,
	})
	if err != nil {
		h.recordError("CreateIndex", "validation")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	desc := registry.Descriptor{
		Table:          req.Table,
		Column:         req.Column,
		Kind:           toRegistryKind(method),
		Metric:         opts.Metric,
		M:              opts.M,
		EfConstruction: opts.EfConstruction,
		EfSearch:       opts.EfSearch,
		Quantization:   opts.Quantization,
		Dimension:      req.Dimension,
	}
	if req.Seed != nil {
		desc.Seed = *req.Seed
		desc.SeedSet = true
	}

	key, err := h.reg.CreateIndex(desc)
	if err != nil {
		h.recordError("CreateIndex", kindLabel(err))
		h.logger.LogError("CreateIndex", err, map[string]interface{}{"table": req.Table, "column": req.Column})
		writeError(w, err.Error(), statusForErr(err))
		return
	}

	h.logger.Info("index created", map[string]interface{}{"table": req.Table, "column": req.Column})
	h.recordSuccess("CreateIndex", start)
	writeJSON(w, map[string]interface{}{"key": key}, http.StatusCreated)
}

// DropIndex handles DELETE /v1/indexes/{table}/{column}.
func (h *Handler) DropIndex(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodDelete {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	table, column, ok := parseTableColumn(r.URL.Path, "/v1/indexes/")
	if !ok {
		h.recordError("DropIndex", "bad_request")
		writeError(w, "expected /v1/indexes/{table}/{column}", http.StatusBadRequest)
		return
	}

	key := registry.KeyFor(table, column)
	if err := h.reg.DropIndex(key); err != nil {
		h.recordError("DropIndex", kindLabel(err))
		h.logger.LogError("DropIndex", err, map[string]interface{}{"table": table, "column": column})
		writeError(w, err.Error(), statusForErr(err))
		return
	}

	h.logger.Info("index dropped", map[string]interface{}{"table": table, "column": column})
	h.recordSuccess("DropIndex", start)
	writeJSON(w, map[string]string{"status": "dropped"}, http.StatusOK)
}

// Enumerate handles GET /v1/indexes, listing every registered index
// (spec.md §4.8's Enumerate operation).
func (h *Handler) Enumerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := h.reg.Enumerate()
	if h.metrics != nil {
		h.metrics.SetIndexesTotal(len(entries))
	}

	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		if h.metrics != nil {
			h.metrics.UpdateIndexMemory(e.Table, e.Column, e.MemoryBytes)
		}
		out = append(out, map[string]interface{}{
			"table":        e.Table,
			"column":       e.Column,
			"memory_bytes": e.MemoryBytes,
			"state":        e.State.String(),
		})
	}

	h.recordSuccess("Enumerate", start)
	writeJSON(w, out, http.StatusOK)
}

func (h *Handler) recordSuccess(method string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRequest(method, "success", time.Since(start))
}

func (h *Handler) recordError(method, kind string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordError(method, kind)
}

func toRegistryKind(m sqlext.IndexMethod) registry.Kind {
	if m == sqlext.MethodFlat {
		return registry.Flat
	}
	return registry.HNSW
}

func kindLabel(err error) string {
	switch vecerr.KindOf(err) {
	case vecerr.KindValidation:
		return "validation"
	case vecerr.KindCapacity:
		return "capacity"
	case vecerr.KindConflict:
		return "conflict"
	case vecerr.KindMissing:
		return "missing"
	case vecerr.KindCancelled:
		return "cancelled"
	case vecerr.KindCorruption:
		return "corruption"
	default:
		return "unknown"
	}
}

func statusForErr(err error) int {
	switch vecerr.KindOf(err) {
	case vecerr.KindValidation:
		return http.StatusBadRequest
	case vecerr.KindMissing:
		return http.StatusNotFound
	case vecerr.KindConflict:
		return http.StatusConflict
	case vecerr.KindCapacity:
		return http.StatusInsufficientStorage
	case vecerr.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseTableColumn(path, prefix string) (table, column string, ok bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": statusCode,
	})
}

// ParseIntQuery parses an integer query parameter, falling back to
// defaultValue when absent or malformed.
func ParseIntQuery(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
