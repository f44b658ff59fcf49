package httpapi

import (
	"net/http"
	"time"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

type createProjectRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Goal        string     `json:"goal"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
}

type updateProjectRequest struct {
	Title       string                `json:"title"`
	Description *string               `json:"description"`
	Goal        *string               `json:"goal"`
	End         *time.Time            `json:"end"`
	Status      *domain.ProjectStatus `json:"status"`
	Version     *int64                `json:"version"`
}

func (h *handler) listAllProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListAllProjects(r.Context(), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, projects)
}

func (h *handler) listMyProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListMyProjects(r.Context(), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, projects)
}

func (h *handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	project, err := h.svc.CreateProject(r.Context(), actorID(r), domain.CreateProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Goal:        req.Goal,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, project)
}

func (h *handler) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.svc.GetProject(r.Context(), param(r, "project"), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, project)
}

func (h *handler) updateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	project, err := h.svc.UpdateProject(r.Context(), param(r, "project"), actorID(r), domain.UpdateProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Goal:        req.Goal,
		End:         req.End,
		Status:      req.Status,
		Version:     req.Version,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, project)
}

func (h *handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProject(r.Context(), param(r, "project"), actorID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": param(r, "project")})
}

func (h *handler) setTimelineVisibility(w http.ResponseWriter, r *http.Request) {
	var show bool
	switch param(r, "visibility") {
	case "show":
		show = true
	case "hide":
	default:
		h.writeError(w, r, domain.ErrNotFound)
		return
	}
	participant, err := h.svc.SetTimelineVisibility(r.Context(), param(r, "project"), actorID(r), show)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, participant)
}

func (h *handler) invite(w http.ResponseWriter, r *http.Request) {
	participant, err := h.svc.Invite(r.Context(), param(r, "project"), param(r, "user"), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, participant)
}

func (h *handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	participant, err := h.svc.Remove(r.Context(), param(r, "project"), param(r, "user"), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, participant)
}

// participantAction handles the caller's own accept, reject and leave.
func (h *handler) participantAction(w http.ResponseWriter, r *http.Request) {
	var (
		participant domain.Participant
		err         error
	)
	projectID := param(r, "project")
	switch param(r, "action") {
	case "accept":
		participant, err = h.svc.Accept(r.Context(), projectID, actorID(r))
	case "reject":
		participant, err = h.svc.Reject(r.Context(), projectID, actorID(r))
	case "leave":
		participant, err = h.svc.Leave(r.Context(), projectID, actorID(r))
	default:
		err = domain.ErrNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, participant)
}
