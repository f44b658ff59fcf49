package httpapi

import "net/http"

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	cursor, err := cursorFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	messages, err := h.svc.ListMessages(r.Context(), param(r, "project"), actorID(r), cursor)
	h.respond(w, r, http.StatusOK, messages, err)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	message, err := h.svc.CreateMessage(r.Context(), param(r, "project"), actorID(r), req.Message)
	h.respond(w, r, http.StatusCreated, message, err)
}

func (h *handler) listActivities(w http.ResponseWriter, r *http.Request) {
	cursor, err := cursorFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	activities, err := h.svc.ListActivities(r.Context(), param(r, "project"), actorID(r), cursor)
	h.respond(w, r, http.StatusOK, activities, err)
}
