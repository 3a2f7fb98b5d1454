package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/engine"
	"github.com/sells-group/hexrisk/internal/maperr"
)

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			zap.L().Error("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRiskMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := intParam(q, "year")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resolution, err := intParam(q, "resolution")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	m, err := h.maps.RiskMap(r.Context(), engine.RiskMapRequest{
		IndicatorID: strings.TrimSpace(q.Get("indicatorId")),
		MaterialID:  strings.TrimSpace(q.Get("materialId")),
		Year:        year,
		Resolution:  resolution,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleImpactMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := intParam(q, "year")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resolution, err := intParam(q, "resolution")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	m, err := h.maps.ImpactMap(r.Context(), engine.ImpactMapRequest{
		IndicatorID:   strings.TrimSpace(q.Get("indicatorId")),
		Year:          year,
		Resolution:    resolution,
		MaterialIDs:   listParam(q, "materialIds"),
		OriginIDs:     listParam(q, "originIds"),
		SupplierIDs:   listParam(q, "supplierIds"),
		LocationTypes: listParam(q, "locationTypes"),
		ScenarioID:    strings.TrimSpace(q.Get("scenarioId")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleRegistryStats(w http.ResponseWriter, _ *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "registry cache disabled"})
		return
	}
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// handlePurgeCache drops every cached registry entry, e.g. after datasets
// were reseeded.
func (h *Handler) handlePurgeCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "registry cache disabled"})
		return
	}
	h.cache.Purge()
	zap.L().Info("api: registry cache purged", zap.String("request_id", RequestIDFrom(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleInvalidateOwner(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "registry cache disabled"})
		return
	}
	owner := strings.TrimSpace(chi.URLParam(r, "ownerId"))
	h.cache.Invalidate(owner)
	zap.L().Info("api: registry cache invalidated",
		zap.String("owner_id", owner),
		zap.String("request_id", RequestIDFrom(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// intParam parses an integer query parameter. A missing value is zero and
// left to request validation.
func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, maperr.NewInvalidRequest(name, "must be an integer")
	}
	return n, nil
}

// listParam collects repeated values given as name[] or name.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, key := range []string{name + "[]", name} {
		for _, v := range q[key] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// writeError translates err into a status and public message. Server-side
// failures are logged with their full cause.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := maperr.HTTPStatus(err)
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: map request failed", fields...)
	} else {
		zap.L().Debug("api: map request rejected", fields...)
	}
	writeJSON(w, status, errorBody{Error: maperr.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
