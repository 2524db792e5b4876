package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// defaultSearchLimit caps record listings unless the caller asks otherwise
const defaultSearchLimit = 100

// Handlers provides HTTP handlers for the audit query API
type Handlers struct {
	source Source
}

// NewHandlers creates new audit handlers over the given record source
func NewHandlers(source Source) *Handlers {
	return &Handlers{
		source: source,
	}
}

// RegisterRoutes registers audit query routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/records", h.listRecords).Methods("GET")
	router.HandleFunc("/audit/export", h.exportRecords).Methods("GET")
	router.HandleFunc("/audit/stats", h.getStats).Methods("GET")
}

// listRecords handles GET /audit/records
func (h *Handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	filter, limit := h.parseFilter(r)

	records, err := h.source.Search(r.Context(), filter, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"records": records,
		"count":   len(records),
		"limit":   limit,
	})
}

// exportRecords handles GET /audit/export
func (h *Handlers) exportRecords(w http.ResponseWriter, r *http.Request) {
	filter, limit := h.parseFilter(r)

	format := ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ExportFormatJSON
	}

	records, err := h.source.Search(r.Context(), filter, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := Export(records, format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-records.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-records.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-records.json")
	}

	w.Write(data)
}

// getStats handles GET /audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	filter, _ := h.parseFilter(r)

	stats, err := h.source.Stats(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// parseFilter parses the record filter and limit from query parameters
func (h *Handlers) parseFilter(r *http.Request) (Filter, int) {
	query := r.URL.Query()
	filter := Filter{}

	filter.Actor = query.Get("actor")
	filter.Operation = Operation(query.Get("operation"))
	filter.Library = query.Get("library")
	filter.Symbol = query.Get("symbol")

	if sinceStr := query.Get("since"); sinceStr != "" {
		if t, err := ParseTime(sinceStr); err == nil {
			filter.Since = t
		}
	}

	if untilStr := query.Get("until"); untilStr != "" {
		if t, err := ParseTime(untilStr); err == nil {
			filter.Until = t
		}
	}

	limit := defaultSearchLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	return filter, limit
}
