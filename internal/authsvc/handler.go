package authsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"bus-fleet/pkg/auth"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/ratelimit"
)

const requestTimeout = 10 * time.Second

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// Handler serves the admin auth endpoints.
type Handler struct {
	svc      *Service
	jwt      *auth.JWTManager
	limiter  *ratelimit.Limiter
	log      logger.Logger
	validate *validator.Validate
}

// NewHandler builds the auth handler. Login attempts are throttled per client
// address by limiter.
func NewHandler(svc *Service, jwt *auth.JWTManager, limiter *ratelimit.Limiter, log logger.Logger) *Handler {
	return &Handler{svc: svc, jwt: jwt, limiter: limiter, log: log, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.Handle("PUT /api/auth/change-password",
		h.jwt.AuthMiddleware(auth.RequireRole(auth.RoleAdmin, http.HandlerFunc(h.ChangePassword))))
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	admin, err := h.svc.Register(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already exists")
		return
	case err != nil:
		h.log.Error("admin_register_failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to register admin")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Admin registered",
		"user":    admin,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	client := clientAddr(r)
	if !h.limiter.Allow(client) {
		h.log.WithFields(logger.LogFields{"client": client}).Warn("admin_login_throttled", "Too many login attempts")
		writeError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Login(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.log.WithFields(logger.LogFields{"username": req.Username}).Warn("admin_login_rejected", "Invalid credentials")
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	case err != nil:
		h.log.Error("admin_login_failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	h.limiter.Reset(client)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	adminID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token subject")
		return
	}

	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	err = h.svc.ChangePassword(ctx, adminID, req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, ErrWrongPassword):
		writeError(w, http.StatusBadRequest, "Old password is incorrect")
		return
	case errors.Is(err, ErrAdminNotFound):
		writeError(w, http.StatusNotFound, "Admin not found")
		return
	case err != nil:
		h.log.Error("admin_change_password_failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
