package engine

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Handler exposes the decision endpoint. Self checks need only a session;
// checking another user's access is an admin operation.
type Handler struct {
	logger     *slog.Logger
	engine     *Engine
	principals PrincipalSource
	guard      Guard
	validate   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, eng *Engine, principals PrincipalSource, guard Guard) *Handler {
	return &Handler{logger: logger, engine: eng, principals: principals, guard: guard, validate: validator.New()}
}

// MountRoutes registers check routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated)
		r.Post("/", h.checkSelf)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("users", "view"))
		r.Post("/users/{id}", h.checkUser)
	})
}

type checkRequest struct {
	ResourceType string `json:"resource_type" validate:"required"`
	Action       string `json:"action" validate:"required"`
	ResourceID   string `json:"resource_id"`
}

func (h *Handler) checkSelf(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	h.check(w, r, principal)
}

func (h *Handler) checkUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	principal, err := h.principals.PrincipalByID(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.check(w, r, principal)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request, principal shared.Principal) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	decision, err := h.engine.Check(r.Context(), principal, req.ResourceType, req.Action, req.ResourceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
