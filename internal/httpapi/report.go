package httpapi

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qms/walkin-service/internal/reporting"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, direction, ok := h.parseReportQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.report.Query(filter, direction))
}

func (h *Handler) handleReportRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.report.Load(r.Context()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, h.report.View())
}

func (h *Handler) handleReportSort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, _, ok := h.parseReportQuery(w, r)
	if !ok {
		return
	}
	h.report.ToggleSort()
	writeJSON(w, http.StatusOK, h.report.Query(filter, ""))
}

func (h *Handler) handleReportExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, direction, ok := h.parseReportQuery(w, r)
	if !ok {
		return
	}
	view := h.report.Query(filter, direction)

	var buf bytes.Buffer
	if err := reporting.WriteWorkbook(&buf, view); err != nil {
		writeError(w, "", http.StatusInternalServerError, "export_failed", "could not build workbook")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="walkin-report.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseReportQuery reads the filter from q, start and end and an optional
// sort direction. The shared report state is left as is.
func (h *Handler) parseReportQuery(w http.ResponseWriter, r *http.Request) (reporting.Filter, reporting.Direction, bool) {
	query := r.URL.Query()
	filter := reporting.Filter{Text: strings.TrimSpace(query.Get("q"))}

	var err error
	if filter.Start, err = h.parseDay(query.Get("start")); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "start must be a YYYY-MM-DD date")
		return reporting.Filter{}, "", false
	}
	if filter.End, err = h.parseDay(query.Get("end")); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "end must be a YYYY-MM-DD date")
		return reporting.Filter{}, "", false
	}

	var direction reporting.Direction
	if raw := strings.TrimSpace(query.Get("sort")); raw != "" {
		parsed, ok := reporting.ParseDirection(raw)
		if !ok {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "sort must be asc or desc")
			return reporting.Filter{}, "", false
		}
		direction = parsed
	}
	return filter, direction, true
}

func (h *Handler) parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", raw, h.location)
}

func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.journal == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	limit := 50
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
