package app

import (
	"fmt"
	"net/http"
	"strconv"

	"tareas/api/internal/report"
)

func (s *HTTPServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.service.Alerts(r.Context(), sessionFrom(r), r.URL.Query().Get("area"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *HTTPServer) handleComparatives(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.service.Comparatives(r.Context(), sessionFrom(r), r.URL.Query().Get("area"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *HTTPServer) handleBottlenecks(w http.ResponseWriter, r *http.Request) {
	bottlenecks, err := s.service.Bottlenecks(r.Context(), sessionFrom(r), r.URL.Query().Get("area"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	payload := map[string]any{"bottlenecks": bottlenecks, "bottleneck": nil}
	if len(bottlenecks) > 0 {
		payload["bottleneck"] = bottlenecks[0]
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleForecast(w http.ResponseWriter, r *http.Request) {
	forecast, err := s.service.Forecast(r.Context(), sessionFrom(r), r.URL.Query().Get("area"), queryInt(r, "months"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *HTTPServer) handleLoad(w http.ResponseWriter, r *http.Request) {
	load, err := s.service.Load(r.Context(), sessionFrom(r), r.URL.Query().Get("area"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"load": load})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary(r.Context(), sessionFrom(r), r.URL.Query().Get("area"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": summary})
}

func (s *HTTPServer) handleInvalidateAnalytics(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pattern string `json:"pattern"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
	}
	n, err := s.service.InvalidateAnalytics(r.Context(), sessionFrom(r), body.Pattern)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": n})
}

// handleReport streams the rendered report as a download.
func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	format := report.Format(r.URL.Query().Get("format"))
	result, err := s.service.Report(r.Context(), sessionFrom(r), r.URL.Query().Get("area"), format)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
