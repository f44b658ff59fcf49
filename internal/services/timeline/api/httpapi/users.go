package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/service"
)

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context(), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

func (h *handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	limit := service.DefaultSearchLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, r, apperrors.New(apperrors.CodeUnknownValue, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	users, err := h.svc.SearchUsers(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

type adminRequest struct {
	Admin *bool `json:"admin"`
}

func (h *handler) setAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Admin == nil {
		h.writeError(w, r, apperrors.Field(apperrors.CodeRequiredParameterMissing, "admin is required", "admin"))
		return
	}
	user, err := h.svc.SetAdmin(r.Context(), actorID(r), param(r, "user"), *req.Admin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}
