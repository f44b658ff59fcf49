package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
)

var accessStatuses = []domain.ParticipantStatus{domain.ParticipantPending, domain.ParticipantActive}

// CreateProject creates a project owned by actorID.
func (s *Service) CreateProject(ctx context.Context, actorID string, input domain.CreateProjectInput) (project domain.Project, err error) {
	ctx, span := s.startSpan(ctx, "CreateProject")
	defer func() { endSpan(span, err) }()

	project, owner, err := domain.CreateProject(input, actorID, s.now, s.newID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.store.CreateProject(ctx, project, owner); err != nil {
		return domain.Project{}, storeErr(err, nil)
	}
	project, err = s.populateProject(ctx, project)
	if err != nil {
		return domain.Project{}, err
	}
	s.publish(ctx, event.ActionCreate, domain.ObjectProject, project, actorID)
	return project, nil
}

// GetProject returns a project to any of its participants.
func (s *Service) GetProject(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return domain.Project{}, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, storeErr(err, nil)
	}
	return s.populateProject(ctx, project)
}

// UpdateProject edits a project. Only the owner may change its status.
func (s *Service) UpdateProject(ctx context.Context, projectID, actorID string, input domain.UpdateProjectInput) (project domain.Project, err error) {
	ctx, span := s.startSpan(ctx, "UpdateProject", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Project{}, err
	}
	current, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, storeErr(err, nil)
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.Project{}, err
	}
	updated, err := domain.ApplyProjectUpdate(current, input, actorID, s.now)
	if err != nil {
		return domain.Project{}, err
	}
	updated, err = s.store.UpdateProject(ctx, updated, current.Version)
	if err != nil {
		return domain.Project{}, storeErr(err, nil)
	}
	updated, err = s.populateProject(ctx, updated)
	if err != nil {
		return domain.Project{}, err
	}
	s.publish(ctx, event.ActionUpdate, domain.ObjectProject, updated, actorID)
	return updated, nil
}

// DeleteProject removes a project with everything in it. Owner only.
func (s *Service) DeleteProject(ctx context.Context, projectID, actorID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteProject", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	project, err := s.gate.RequireOwner(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	resources, err := s.store.ListResources(ctx, projectID)
	if err != nil {
		return storeErr(err, nil)
	}
	outcomes, err := s.store.ListOutcomes(ctx, projectID)
	if err != nil {
		return storeErr(err, nil)
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return storeErr(err, nil)
	}
	for _, resource := range resources {
		if resource.File != nil {
			s.removeBlob(ctx, domain.ResourceBlobKey(projectID, resource.ID))
		}
	}
	for _, outcome := range outcomes {
		s.removeOutcomeBlobs(ctx, outcome)
	}
	s.publish(ctx, event.ActionDelete, domain.ObjectProject, project, actorID)
	return nil
}

// ListMyProjects lists projects where actorID is pending or active.
func (s *Service) ListMyProjects(ctx context.Context, actorID string) ([]domain.Project, error) {
	projects, err := s.store.ListProjectsForUser(ctx, actorID, accessStatuses)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	return s.populateProjects(ctx, projects)
}

// ListAllProjects lists every project. Admin only.
func (s *Service) ListAllProjects(ctx context.Context, actorID string) ([]domain.Project, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	return s.populateProjects(ctx, projects)
}

// SetTimelineVisibility toggles whether a project shows on the caller's
// own timeline.
func (s *Service) SetTimelineVisibility(ctx context.Context, projectID, actorID string, show bool) (domain.Participant, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return domain.Participant{}, err
	}
	participant, err := s.store.SetShowOnTimeline(ctx, projectID, actorID, show, domain.Stamp(s.now()))
	if err != nil {
		return domain.Participant{}, storeErr(err, domain.ErrNotProjectParticipant)
	}
	return participant, nil
}

func (s *Service) populateProjects(ctx context.Context, projects []domain.Project) ([]domain.Project, error) {
	for i := range projects {
		populated, err := s.populateProject(ctx, projects[i])
		if err != nil {
			return nil, err
		}
		projects[i] = populated
	}
	return projects, nil
}

// populateProject fills participants from the membership store and user
// summaries for creator, owner and every participant.
func (s *Service) populateProject(ctx context.Context, project domain.Project) (domain.Project, error) {
	participants, err := s.store.ListParticipants(ctx, project.ID)
	if err != nil {
		return domain.Project{}, storeErr(err, nil)
	}
	ids := []string{project.CreatorID, project.OwnerID}
	for _, participant := range participants {
		ids = append(ids, participant.UserID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return domain.Project{}, err
	}
	for i := range participants {
		participants[i].User = users[participants[i].UserID]
	}
	project.Participants = participants
	project.Creator = users[project.CreatorID]
	project.Owner = users[project.OwnerID]
	return project, nil
}
