package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"coworkgate/internal/core"
	"coworkgate/internal/membership"
	"coworkgate/internal/types"
)

const (
	defaultSessionLimit = 10
	maxSessionLimit     = 100
)

// MembershipTransitioner applies operator-initiated membership changes.
type MembershipTransitioner interface {
	Cancel(ctx context.Context, studentID string) (*types.Student, error)
	Reset(ctx context.Context, studentID string) (*types.Student, error)
}

// StudentReader loads a student by id.
type StudentReader interface {
	GetByID(ctx context.Context, id string) (*types.Student, error)
}

// SessionLister returns a student's most recent sessions.
type SessionLister interface {
	ListByStudent(ctx context.Context, studentID string, limit int) ([]types.Session, error)
}

type membershipResponse struct {
	StudentID       string                 `json:"studentId"`
	FullName        string                 `json:"fullName"`
	Active          bool                   `json:"activo"`
	IsCheckedIn     bool                   `json:"isCheckedIn"`
	Membership      types.Membership       `json:"membership"`
	EffectiveStatus types.MembershipStatus `json:"effectiveStatus"`
	Sessions        []types.Session        `json:"sessions,omitempty"`
}

// MembershipAdminHandler serves the operator membership routes under /admin.
type MembershipAdminHandler struct {
	transitions MembershipTransitioner
	students    StudentReader
	sessions    SessionLister
	clock       types.Clock
	logger      *slog.Logger
}

// NewMembershipAdminHandler creates a MembershipAdminHandler.
func NewMembershipAdminHandler(
	transitions MembershipTransitioner,
	students StudentReader,
	sessions SessionLister,
	logger *slog.Logger,
) *MembershipAdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipAdminHandler{
		transitions: transitions,
		students:    students,
		sessions:    sessions,
		clock:       time.Now,
		logger:      logger,
	}
}

// WithClock overrides the clock used for the effective status.
func (h *MembershipAdminHandler) WithClock(clock types.Clock) *MembershipAdminHandler {
	h.clock = clock
	return h
}

// RegisterRoutes mounts the routes; the caller mounts them under /admin.
func (h *MembershipAdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/students/{studentID}/membership", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/cancel", h.Cancel)
		r.Post("/reset", h.Reset)
	})
}

// Get handles GET /admin/students/{studentID}/membership?sessions=N.
func (h *MembershipAdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "studentID")

	limit, err := sessionLimit(r.URL.Query().Get("sessions"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	student, err := h.students.GetByID(ctx, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := h.toResponse(student)
	if h.sessions != nil && limit > 0 {
		sessions, err := h.sessions.ListByStudent(ctx, id, limit)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		resp.Sessions = sessions
	}

	core.JSON(w, r, http.StatusOK, resp)
}

// Cancel handles POST /admin/students/{studentID}/membership/cancel.
func (h *MembershipAdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "cancel", h.transitions.Cancel)
}

// Reset handles POST /admin/students/{studentID}/membership/reset.
func (h *MembershipAdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "reset", h.transitions.Reset)
}

func (h *MembershipAdminHandler) apply(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string) (*types.Student, error)) {
	id := chi.URLParam(r, "studentID")
	student, err := fn(r.Context(), id)
	if err != nil {
		types.LoggerFromContext(r.Context(), h.logger).WarnContext(r.Context(), "membership transition rejected",
			"op", op,
			"student_id", id,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, h.toResponse(student))
}

func (h *MembershipAdminHandler) toResponse(s *types.Student) membershipResponse {
	return membershipResponse{
		StudentID:       s.ID,
		FullName:        s.FullName,
		Active:          s.Active,
		IsCheckedIn:     s.IsCheckedIn,
		Membership:      s.Membership,
		EffectiveStatus: membership.EffectiveStatus(s.Membership, h.clock()),
	}
}

func sessionLimit(raw string) (int, error) {
	if raw == "" {
		return defaultSessionLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxSessionLimit {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
			"sessions must be an integer between 0 and 100", err,
			map[string]any{"field": "sessions"})
	}
	return n, nil
}
