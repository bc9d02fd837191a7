package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"coworkgate/internal/access"
	"coworkgate/internal/core"
	"coworkgate/internal/types"
)

// AccessToggler flips a student's check-in state.
type AccessToggler interface {
	Toggle(ctx context.Context, code string) (*access.Result, error)
}

type toggleRequest struct {
	AccessCode string `json:"accessCode" validate:"required,access_code"`
}

type toggleResponse struct {
	Action    access.Action  `json:"action"`
	StudentID string         `json:"studentId"`
	FullName  string         `json:"fullName"`
	Session   *types.Session `json:"session,omitempty"`
}

// AccessHandler serves the reception kiosk.
type AccessHandler struct {
	gate      AccessToggler
	validator *core.Validator
	logger    *slog.Logger
}

// NewAccessHandler creates an AccessHandler.
func NewAccessHandler(gate AccessToggler, v *core.Validator, logger *slog.Logger) *AccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessHandler{gate: gate, validator: v, logger: logger}
}

// RegisterRoutes mounts the kiosk routes. The caller mounts them on the
// rate-limited group.
func (h *AccessHandler) RegisterRoutes(r chi.Router) {
	r.Post("/access/toggle", h.Toggle)
}

// Toggle handles POST /access/toggle.
func (h *AccessHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.AccessCode = strings.TrimSpace(req.AccessCode)
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.gate.Toggle(r.Context(), req.AccessCode)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, toggleResponse{
		Action:    res.Action,
		StudentID: res.Student.ID,
		FullName:  res.Student.FullName,
		Session:   res.Session,
	})
}
