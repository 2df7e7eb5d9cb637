package rest

import (
	"net/http"

	"bus-fleet/internal/fleet/domain"
)

type maintenanceRequest struct {
	BusID       int64   `json:"bus_id" validate:"required,gt=0"`
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Description string  `json:"description" validate:"max=1000"`
	Cost        float64 `json:"cost" validate:"gte=0"`
	Status      string  `json:"status" validate:"omitempty,oneof=scheduled in_progress completed cancelled"`
}

func (req maintenanceRequest) toRecord(id int64) *domain.MaintenanceRecord {
	return &domain.MaintenanceRecord{
		ID:          id,
		VehicleID:   req.BusID,
		Date:        req.Date,
		Description: req.Description,
		Cost:        req.Cost,
		Status:      domain.MaintenanceStatus(req.Status),
	}
}

func (h *Handler) HandleCreateMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m := req.toRecord(0)
	if err := h.Maintenance.CreateMaintenance(r.Context(), m); err != nil {
		writeServiceError(w, h.log, "maintenance_create_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) HandleListMaintenance(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.Maintenance.ListMaintenance(r.Context(), page)
	if err != nil {
		writeServiceError(w, h.log, "maintenance_list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: nonNil(items), Page: page.Number, PageSize: page.Size, Total: total})
}

func (h *Handler) HandleGetMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.Maintenance.GetMaintenance(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "maintenance_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleUpdateMaintenance rejects status changes that skip the lifecycle.
func (h *Handler) HandleUpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req maintenanceRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m := req.toRecord(id)
	if err := h.Maintenance.UpdateMaintenance(r.Context(), m); err != nil {
		writeServiceError(w, h.log, "maintenance_update_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) HandleDeleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Maintenance.DeleteMaintenance(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "maintenance_delete_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "maintenance deleted"})
}
