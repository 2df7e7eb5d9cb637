package rest

import (
	"net/http"

	"bus-fleet/internal/fleet/domain"
)

type driverRequest struct {
	Code      string  `json:"code" validate:"required,max=50"`
	Name      string  `json:"name" validate:"required,max=150"`
	BirthDate *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Phone     string  `json:"phone" validate:"max=30"`
	PhotoURL  string  `json:"photo_url" validate:"omitempty,url"`
}

func (req driverRequest) toDriver(id int64) *domain.Driver {
	return &domain.Driver{
		ID:        id,
		Code:      req.Code,
		Name:      req.Name,
		BirthDate: req.BirthDate,
		Phone:     req.Phone,
		PhotoURL:  req.PhotoURL,
	}
}

func (h *Handler) HandleCreateDriver(w http.ResponseWriter, r *http.Request) {
	var req driverRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d := req.toDriver(0)
	if err := h.Drivers.CreateDriver(r.Context(), d); err != nil {
		writeServiceError(w, h.log, "driver_create_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) HandleListDrivers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.Drivers.ListDrivers(r.Context(), page)
	if err != nil {
		writeServiceError(w, h.log, "driver_list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: nonNil(items), Page: page.Number, PageSize: page.Size, Total: total})
}

func (h *Handler) HandleGetDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.Drivers.GetDriver(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "driver_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleUpdateDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req driverRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d := req.toDriver(id)
	if err := h.Drivers.UpdateDriver(r.Context(), d); err != nil {
		writeServiceError(w, h.log, "driver_update_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleDeleteDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Drivers.DeleteDriver(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "driver_delete_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "driver deleted"})
}
