package rest

import (
	"net/http"
	"time"

	"bus-fleet/internal/fleet/domain"
)

type scheduleRequest struct {
	BusID     int64  `json:"bus_id" validate:"required,gt=0"`
	DriverID  int64  `json:"driver_id" validate:"gte=0"`
	RouteID   int64  `json:"route_id" validate:"gte=0"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,max=8"`
	EndTime   string `json:"end_time" validate:"required,max=8"`
}

func (req scheduleRequest) toEntry(id int64) *domain.ScheduleEntry {
	return &domain.ScheduleEntry{
		ID:        id,
		VehicleID: req.BusID,
		DriverID:  req.DriverID,
		RouteID:   req.RouteID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
}

func (h *Handler) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e := req.toEntry(0)
	if err := h.Schedules.CreateSchedule(r.Context(), e); err != nil {
		writeServiceError(w, h.log, "schedule_create_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleListSchedules accepts an optional date=YYYY-MM-DD filter.
func (h *Handler) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	items, total, err := h.Schedules.ListSchedules(r.Context(), date, page)
	if err != nil {
		writeServiceError(w, h.log, "schedule_list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: nonNil(items), Page: page.Number, PageSize: page.Size, Total: total})
}

func (h *Handler) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := h.Schedules.GetSchedule(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "schedule_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req scheduleRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e := req.toEntry(id)
	if err := h.Schedules.UpdateSchedule(r.Context(), e); err != nil {
		writeServiceError(w, h.log, "schedule_update_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) HandleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Schedules.DeleteSchedule(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "schedule_delete_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "schedule deleted"})
}
