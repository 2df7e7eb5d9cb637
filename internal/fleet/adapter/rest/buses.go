package rest

import (
	"net/http"
	"time"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
)

const (
	defaultHistoryWindow = 24 * time.Hour
	defaultHistoryLimit  = 100
	maxHistoryLimit      = 1000
	defaultNearbyRadius  = 1000
	defaultNearbyLimit   = 20
	maxNearbyLimit       = 200
)

type busRequest struct {
	PlateNumber string `json:"plate_number" validate:"required,max=20"`
	Code        string `json:"code" validate:"required,max=50"`
	Capacity    int    `json:"capacity" validate:"gte=0"`
	Type        string `json:"type" validate:"max=50"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,url"`
}

func (req busRequest) toVehicle(id int64) *domain.Vehicle {
	return &domain.Vehicle{
		ID:          id,
		PlateNumber: req.PlateNumber,
		Code:        req.Code,
		Capacity:    req.Capacity,
		Type:        req.Type,
		PhotoURL:    req.PhotoURL,
	}
}

func (h *Handler) HandleCreateBus(w http.ResponseWriter, r *http.Request) {
	var req busRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v := req.toVehicle(0)
	if err := h.Vehicles.CreateVehicle(r.Context(), v); err != nil {
		writeServiceError(w, h.log, "bus_create_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) HandleListBuses(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.Vehicles.ListVehicles(r.Context(), page)
	if err != nil {
		writeServiceError(w, h.log, "bus_list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: nonNil(items), Page: page.Number, PageSize: page.Size, Total: total})
}

func (h *Handler) HandleGetBus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.Vehicles.GetVehicle(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "bus_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) HandleUpdateBus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req busRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v := req.toVehicle(id)
	if err := h.Vehicles.UpdateVehicle(r.Context(), v); err != nil {
		writeServiceError(w, h.log, "bus_update_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) HandleDeleteBus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Vehicles.DeleteVehicle(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "bus_delete_failed", err)
		return
	}
	if err := h.Live.Remove(r.Context(), id); err != nil {
		h.log.WithFields(logger.LogFields{"bus_id": id}).Warn("bus_live_state_remove_failed", err.Error())
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "bus deleted"})
}

// HandleBusHistory returns telemetry for one bus, newest first. from and to
// are RFC3339; the default window is the last 24 hours.
func (h *Handler) HandleBusHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	to := time.Now()
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
	}
	from := to.Add(-defaultHistoryWindow)
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.Vehicles.GetVehicle(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "bus_history_failed", err)
		return
	}
	rows, err := h.History.ListTelemetry(r.Context(), id, from, to, limit)
	if err != nil {
		writeServiceError(w, h.log, "bus_history_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bus_id": id,
		"from":   from,
		"to":     to,
		"data":   nonNil(rows),
	})
}

// HandleNearbyBuses queries the live geo index around lat/lon.
func (h *Handler) HandleNearbyBuses(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lon") == "" {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	lat, err := queryFloat(r, "lat", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := queryFloat(r, "lon", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validateCoordinates(lat, lon) {
		writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}
	radius, err := queryFloat(r, "radius_m", defaultNearbyRadius)
	if err != nil || radius <= 0 {
		writeError(w, http.StatusBadRequest, "radius_m must be a positive number")
		return
	}
	limit, err := queryInt(r, "limit", defaultNearbyLimit, maxNearbyLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := h.Live.Nearby(r.Context(), lat, lon, radius, limit)
	if err != nil {
		writeServiceError(w, h.log, "bus_nearby_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": nonNil(hits)})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
