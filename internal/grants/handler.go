package grants

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Guard authorizes handler routes.
type Guard interface {
	Require(resourceType, action string) func(http.Handler) http.Handler
}

// Handler manages direct and resource-scoped overrides over JSON. Routes are
// mounted under /users/{id} because every override belongs to one user.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    Guard
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("users", "view"))
		r.Get("/{id}/grants", h.listUserGrants)
		r.Get("/{id}/resource-grants", h.listResourceGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("users", "edit"))
		r.Post("/{id}/grants", h.grantUser)
		r.Delete("/{id}/grants/{code}", h.revokeUser)
		r.Post("/{id}/resource-grants", h.grantResource)
		r.Delete("/{id}/resource-grants/{resourceType}/{resourceID}/{code}", h.revokeResource)
	})
}

type userGrantResponse struct {
	Code      string    `json:"code"`
	IsGranted bool      `json:"is_granted"`
	GrantedAt time.Time `json:"granted_at"`
	GrantedBy int64     `json:"granted_by"`
}

type resourceGrantResponse struct {
	Code         string    `json:"code"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IsGranted    bool      `json:"is_granted"`
	GrantedAt    time.Time `json:"granted_at"`
	GrantedBy    int64     `json:"granted_by"`
}

func (h *Handler) listUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListUserPermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userGrantResponse, 0, len(list))
	for _, g := range list {
		out = append(out, userGrantResponse{Code: g.Code, IsGranted: g.IsGranted, GrantedAt: g.GrantedAt, GrantedBy: g.GrantedBy})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listResourceGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListResourcePermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]resourceGrantResponse, 0, len(list))
	for _, g := range list {
		out = append(out, resourceGrantResponse{
			Code:         g.Code,
			ResourceType: g.ResourceType,
			ResourceID:   g.ResourceID,
			IsGranted:    g.IsGranted,
			GrantedAt:    g.GrantedAt,
			GrantedBy:    g.GrantedBy,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type grantRequest struct {
	Code      string `json:"code" validate:"required"`
	IsGranted *bool  `json:"is_granted" validate:"required"`
	Overwrite bool   `json:"overwrite"`
}

func (h *Handler) grantUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeGrant(w, r)
	if !ok {
		return
	}
	if err := h.service.GrantUserPermission(r.Context(), userID, req.Code, *req.IsGranted, actorID(r), req.Overwrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokeUserPermission(r.Context(), userID, chi.URLParam(r, "code"), actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resourceGrantRequest struct {
	Code         string `json:"code" validate:"required"`
	ResourceType string `json:"resource_type" validate:"required"`
	ResourceID   string `json:"resource_id" validate:"required"`
	IsGranted    *bool  `json:"is_granted" validate:"required"`
	Overwrite    bool   `json:"overwrite"`
}

func (h *Handler) grantResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resourceGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.GrantResourcePermission(r.Context(), userID, req.ResourceType, req.ResourceID, req.Code, *req.IsGranted, actorID(r), req.Overwrite)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	err := h.service.RevokeResourcePermission(r.Context(), userID,
		chi.URLParam(r, "resourceType"), chi.URLParam(r, "resourceID"), chi.URLParam(r, "code"), actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeGrant(w http.ResponseWriter, r *http.Request) (grantRequest, bool) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return grantRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return grantRequest{}, false
	}
	return req, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return 0
}
