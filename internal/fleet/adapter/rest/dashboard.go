package rest

import (
	"net/http"
	"strconv"
)

const activityDefaultDays = 7

func (h *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.Dashboard.Overview(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "dashboard_overview_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) HandlePassengerChart(w http.ResponseWriter, r *http.Request) {
	hours, err := h.Dashboard.PassengerChart(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "dashboard_chart_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": nonNil(hours)})
}

// HandleActivity serves per-day passenger stats for start_date..end_date,
// optionally narrowed to one bus_id.
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := h.Dashboard.ResolveRange(q.Get("start_date"), q.Get("end_date"), activityDefaultDays)
	if err != nil {
		writeServiceError(w, h.log, "dashboard_activity_failed", err)
		return
	}

	var busID *int64
	if v := q.Get("bus_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "bus_id must be a positive integer")
			return
		}
		busID = &id
	}

	days, err := h.Dashboard.Activity(r.Context(), rng, busID)
	if err != nil {
		writeServiceError(w, h.log, "dashboard_activity_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": nonNil(days)})
}

func (h *Handler) HandleUtilization(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := h.Dashboard.ResolveRange(q.Get("start_date"), q.Get("end_date"), activityDefaultDays)
	if err != nil {
		writeServiceError(w, h.log, "dashboard_utilization_failed", err)
		return
	}
	rows, err := h.Dashboard.Utilization(r.Context(), rng)
	if err != nil {
		writeServiceError(w, h.log, "dashboard_utilization_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": nonNil(rows)})
}
