package rest

import (
	"net/http"

	"bus-fleet/internal/fleet/domain"
)

type routeRequest struct {
	Name     string `json:"name" validate:"required,max=150"`
	Code     string `json:"code" validate:"required,max=50"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
	Polyline string `json:"polyline"`
}

func (req routeRequest) toRoute(id int64) *domain.Route {
	status := domain.RouteStatus(req.Status)
	if status == "" {
		status = domain.RouteStatusActive
	}
	return &domain.Route{ID: id, Name: req.Name, Code: req.Code, Status: status, Polyline: req.Polyline}
}

func (h *Handler) HandleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt := req.toRoute(0)
	if err := h.Deps.Routes.CreateRoute(r.Context(), rt); err != nil {
		writeServiceError(w, h.log, "route_create_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (h *Handler) HandleListRoutes(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.Deps.Routes.ListRoutes(r.Context(), page)
	if err != nil {
		writeServiceError(w, h.log, "route_list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: nonNil(items), Page: page.Number, PageSize: page.Size, Total: total})
}

func (h *Handler) HandleGetRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt, err := h.Deps.Routes.GetRoute(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "route_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// HandleRouteStops lists a route's stops in sequence order.
func (h *Handler) HandleRouteStops(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.Deps.Routes.GetRoute(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "route_stops_failed", err)
		return
	}
	stops, err := h.Stops.ListStopsByRoute(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "route_stops_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"route_id": id, "data": nonNil(stops)})
}

func (h *Handler) HandleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req routeRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt := req.toRoute(id)
	if err := h.Deps.Routes.UpdateRoute(r.Context(), rt); err != nil {
		writeServiceError(w, h.log, "route_update_failed", err)
		return
	}
	h.invalidateStops()
	writeJSON(w, http.StatusOK, rt)
}

func (h *Handler) HandleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Deps.Routes.DeleteRoute(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "route_delete_failed", err)
		return
	}
	h.invalidateStops()
	writeJSON(w, http.StatusOK, messageResponse{Message: "route deleted"})
}

type stopRequest struct {
	Name      string   `json:"name" validate:"required,max=150"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	RouteID   int64    `json:"route_id" validate:"required,gt=0"`
	Sequence  int      `json:"sequence" validate:"required,gte=1"`
}

func (req stopRequest) toStop(id int64) *domain.Stop {
	return &domain.Stop{
		ID:        id,
		Name:      req.Name,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		RouteID:   req.RouteID,
		Sequence:  req.Sequence,
	}
}

func (h *Handler) HandleCreateStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := req.toStop(0)
	if err := h.Stops.CreateStop(r.Context(), st); err != nil {
		writeServiceError(w, h.log, "stop_create_failed", err)
		return
	}
	h.invalidateStops()
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) HandleListStops(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.Stops.ListStopsPage(r.Context(), page)
	if err != nil {
		writeServiceError(w, h.log, "stop_list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: nonNil(items), Page: page.Number, PageSize: page.Size, Total: total})
}

func (h *Handler) HandleGetStop(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.Stops.GetStop(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "stop_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleUpdateStop(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req stopRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := req.toStop(id)
	if err := h.Stops.UpdateStop(r.Context(), st); err != nil {
		writeServiceError(w, h.log, "stop_update_failed", err)
		return
	}
	h.invalidateStops()
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleDeleteStop(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Stops.DeleteStop(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "stop_delete_failed", err)
		return
	}
	h.invalidateStops()
	writeJSON(w, http.StatusOK, messageResponse{Message: "stop deleted"})
}
