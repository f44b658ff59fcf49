package httpapi

import (
	"net/http"
	"time"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

type entryRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	Color       *int       `json:"color"`
	Version     *int64     `json:"version"`
}

func (req entryRequest) input() domain.EntryInput {
	return domain.EntryInput{
		Title:       req.Title,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		Color:       req.Color,
		Version:     req.Version,
	}
}

func (h *handler) decodeEntry(w http.ResponseWriter, r *http.Request) (domain.EntryInput, bool) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return domain.EntryInput{}, false
	}
	return req.input(), true
}

func deleted(id string) map[string]string {
	return map[string]string{"id": id}
}

func (h *handler) listAnnotations(w http.ResponseWriter, r *http.Request) {
	annotations, err := h.svc.ListAnnotations(r.Context(), param(r, "project"), actorID(r))
	h.respond(w, r, http.StatusOK, annotations, err)
}

func (h *handler) createAnnotation(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	annotation, err := h.svc.CreateAnnotation(r.Context(), param(r, "project"), actorID(r), input)
	h.respond(w, r, http.StatusCreated, annotation, err)
}

func (h *handler) updateAnnotation(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	annotation, err := h.svc.UpdateAnnotation(r.Context(), param(r, "project"), param(r, "id"), actorID(r), input)
	h.respond(w, r, http.StatusOK, annotation, err)
}

func (h *handler) deleteAnnotation(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteAnnotation(r.Context(), param(r, "project"), param(r, "id"), actorID(r))
	h.respond(w, r, http.StatusOK, deleted(param(r, "id")), err)
}

func (h *handler) listMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.svc.ListMilestones(r.Context(), param(r, "project"), actorID(r))
	h.respond(w, r, http.StatusOK, milestones, err)
}

func (h *handler) createMilestone(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	milestone, err := h.svc.CreateMilestone(r.Context(), param(r, "project"), actorID(r), input)
	h.respond(w, r, http.StatusCreated, milestone, err)
}

func (h *handler) updateMilestone(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	milestone, err := h.svc.UpdateMilestone(r.Context(), param(r, "project"), param(r, "id"), actorID(r), input)
	h.respond(w, r, http.StatusOK, milestone, err)
}

func (h *handler) deleteMilestone(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteMilestone(r.Context(), param(r, "project"), param(r, "id"), actorID(r))
	h.respond(w, r, http.StatusOK, deleted(param(r, "id")), err)
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListTasks(r.Context(), param(r, "project"), actorID(r))
	h.respond(w, r, http.StatusOK, tasks, err)
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	task, err := h.svc.CreateTask(r.Context(), param(r, "project"), actorID(r), input)
	h.respond(w, r, http.StatusCreated, task, err)
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	task, err := h.svc.UpdateTask(r.Context(), param(r, "project"), param(r, "id"), actorID(r), input)
	h.respond(w, r, http.StatusOK, task, err)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteTask(r.Context(), param(r, "project"), param(r, "id"), actorID(r))
	h.respond(w, r, http.StatusOK, deleted(param(r, "id")), err)
}

func (h *handler) attach(w http.ResponseWriter, r *http.Request) {
	h.changeAttachment(w, r, false)
}

func (h *handler) detach(w http.ResponseWriter, r *http.Request) {
	h.changeAttachment(w, r, true)
}

func (h *handler) changeAttachment(w http.ResponseWriter, r *http.Request, detach bool) {
	kind, err := domain.ParseAttachmentKind(param(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var task domain.Task
	if detach {
		task, err = h.svc.Detach(r.Context(), param(r, "project"), param(r, "id"), kind, param(r, "ref"), actorID(r))
	} else {
		task, err = h.svc.Attach(r.Context(), param(r, "project"), param(r, "id"), kind, param(r, "ref"), actorID(r))
	}
	h.respond(w, r, http.StatusOK, task, err)
}
