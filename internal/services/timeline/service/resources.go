package service

import (
	"context"
	"errors"
	"io"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/blob"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
)

// Download is an open stored file with its metadata.
type Download struct {
	File    domain.FileInfo
	Content io.ReadCloser
}

// ListResources lists a project's resources in creation order.
func (s *Service) ListResources(ctx context.Context, projectID, actorID string) ([]domain.Resource, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	resources, err := s.store.ListResources(ctx, projectID)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	ids := make([]string, 0, len(resources))
	for _, resource := range resources {
		ids = append(ids, resource.CreatorID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range resources {
		resources[i].Creator = users[resources[i].CreatorID]
	}
	return resources, nil
}

// CreateResource adds a link or file resource. content holds the file
// bytes when input.File is set.
func (s *Service) CreateResource(ctx context.Context, projectID, actorID string, input domain.ResourceInput, content io.Reader) (resource domain.Resource, err error) {
	ctx, span := s.startSpan(ctx, "CreateResource", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Resource{}, err
	}
	resource, err = domain.NewResource(projectID, actorID, input, s.now, s.newID)
	if err != nil {
		return domain.Resource{}, err
	}
	if err := s.store.PutResource(ctx, resource); err != nil {
		return domain.Resource{}, storeErr(err, nil)
	}
	if resource.File != nil {
		s.putBlob(ctx, domain.ResourceBlobKey(projectID, resource.ID), content)
	}
	resource.Creator, err = s.creator(ctx, resource.CreatorID)
	if err != nil {
		return domain.Resource{}, err
	}
	s.publish(ctx, event.ActionCreate, domain.ObjectResource, resource, actorID)
	return resource, nil
}

// UpdateResource edits a resource. A new file replaces the stored bytes,
// a url drops them.
func (s *Service) UpdateResource(ctx context.Context, projectID, resourceID, actorID string, input domain.ResourceInput, content io.Reader) (resource domain.Resource, err error) {
	ctx, span := s.startSpan(ctx, "UpdateResource", attribute.String("resource.id", resourceID))
	defer func() { endSpan(span, err) }()

	current, err := s.activeResource(ctx, projectID, resourceID, actorID)
	if err != nil {
		return domain.Resource{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.Resource{}, err
	}
	resource, dropBlob, err := current.Apply(input, s.now)
	if err != nil {
		return domain.Resource{}, err
	}
	resource, err = s.store.UpdateResource(ctx, resource, current.Version)
	if err != nil {
		return domain.Resource{}, storeErr(err, nil)
	}
	key := domain.ResourceBlobKey(projectID, resource.ID)
	switch {
	case input.File != nil:
		s.putBlob(ctx, key, content)
	case dropBlob:
		s.removeBlob(ctx, key)
	}
	resource.Creator, err = s.creator(ctx, resource.CreatorID)
	if err != nil {
		return domain.Resource{}, err
	}
	s.publish(ctx, event.ActionUpdate, domain.ObjectResource, resource, actorID)
	return resource, nil
}

// DeleteResource removes a resource and detaches it from every task.
func (s *Service) DeleteResource(ctx context.Context, projectID, resourceID, actorID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteResource", attribute.String("resource.id", resourceID))
	defer func() { endSpan(span, err) }()

	resource, err := s.activeResource(ctx, projectID, resourceID, actorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteResource(ctx, resourceID); err != nil {
		return storeErr(err, nil)
	}
	if resource.File != nil {
		s.removeBlob(ctx, domain.ResourceBlobKey(projectID, resourceID))
	}
	s.publish(ctx, event.ActionDelete, domain.ObjectResource, resource, actorID)
	return nil
}

// OpenResourceFile streams a resource file to any participant of its
// project.
func (s *Service) OpenResourceFile(ctx context.Context, resourceID, actorID string) (Download, error) {
	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return Download{}, storeErr(err, nil)
	}
	if _, err := s.gate.RequireAnyParticipant(ctx, resource.ProjectID, actorID); err != nil {
		return Download{}, err
	}
	if resource.File == nil {
		return Download{}, domain.ErrNotFound
	}
	content, err := s.openBlob(ctx, domain.ResourceBlobKey(resource.ProjectID, resource.ID))
	if err != nil {
		return Download{}, err
	}
	return Download{File: *resource.File, Content: content}, nil
}

func (s *Service) activeResource(ctx context.Context, projectID, resourceID, actorID string) (domain.Resource, error) {
	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Resource{}, err
	}
	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return domain.Resource{}, storeErr(err, nil)
	}
	if err := checkProject(resource, projectID); err != nil {
		return domain.Resource{}, err
	}
	return resource, nil
}

// ListOutcomes lists a project's outcomes with their versions.
func (s *Service) ListOutcomes(ctx context.Context, projectID, actorID string) ([]domain.Outcome, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	outcomes, err := s.store.ListOutcomes(ctx, projectID)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	ids := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		ids = append(ids, outcome.CreatorID)
		for _, version := range outcome.Versions {
			ids = append(ids, version.CreatorID)
		}
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range outcomes {
		populateOutcome(&outcomes[i], users)
	}
	return outcomes, nil
}

// CreateOutcome adds an outcome with its first file version.
func (s *Service) CreateOutcome(ctx context.Context, projectID, actorID string, input domain.OutcomeInput, content io.Reader) (outcome domain.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "CreateOutcome", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Outcome{}, err
	}
	outcome, err = domain.NewOutcome(projectID, actorID, input, s.now, s.newID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if err := s.store.PutOutcome(ctx, outcome); err != nil {
		return domain.Outcome{}, storeErr(err, nil)
	}
	if version, ok := outcome.LatestVersion(); ok {
		s.putBlob(ctx, domain.OutcomeVersionBlobKey(projectID, outcome.ID, version.ID), content)
	}
	if err := s.populateOutcomeUsers(ctx, &outcome); err != nil {
		return domain.Outcome{}, err
	}
	s.publish(ctx, event.ActionCreate, domain.ObjectOutcome, outcome, actorID)
	return outcome, nil
}

// UpdateOutcome edits an outcome. A file appends a new version.
func (s *Service) UpdateOutcome(ctx context.Context, projectID, outcomeID, actorID string, input domain.OutcomeInput, content io.Reader) (outcome domain.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "UpdateOutcome", attribute.String("outcome.id", outcomeID))
	defer func() { endSpan(span, err) }()

	current, err := s.activeOutcome(ctx, projectID, outcomeID, actorID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.Outcome{}, err
	}
	outcome, added, err := current.Apply(input, actorID, s.now, s.newID)
	if err != nil {
		return domain.Outcome{}, err
	}
	outcome, err = s.store.UpdateOutcome(ctx, outcome, added, current.Version)
	if err != nil {
		return domain.Outcome{}, storeErr(err, nil)
	}
	if added != nil {
		s.putBlob(ctx, domain.OutcomeVersionBlobKey(projectID, outcome.ID, added.ID), content)
	}
	if err := s.populateOutcomeUsers(ctx, &outcome); err != nil {
		return domain.Outcome{}, err
	}
	s.publish(ctx, event.ActionUpdate, domain.ObjectOutcome, outcome, actorID)
	return outcome, nil
}

// DeleteOutcome removes an outcome with all of its versions.
func (s *Service) DeleteOutcome(ctx context.Context, projectID, outcomeID, actorID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteOutcome", attribute.String("outcome.id", outcomeID))
	defer func() { endSpan(span, err) }()

	outcome, err := s.activeOutcome(ctx, projectID, outcomeID, actorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteOutcome(ctx, outcomeID); err != nil {
		return storeErr(err, nil)
	}
	s.removeOutcomeBlobs(ctx, outcome)
	s.publish(ctx, event.ActionDelete, domain.ObjectOutcome, outcome, actorID)
	return nil
}

// OpenOutcomeFile streams one outcome version to any participant of its
// project.
func (s *Service) OpenOutcomeFile(ctx context.Context, outcomeID, versionID, actorID string) (Download, error) {
	outcome, err := s.store.GetOutcome(ctx, outcomeID)
	if err != nil {
		return Download{}, storeErr(err, nil)
	}
	if _, err := s.gate.RequireAnyParticipant(ctx, outcome.ProjectID, actorID); err != nil {
		return Download{}, err
	}
	for _, version := range outcome.Versions {
		if version.ID != versionID {
			continue
		}
		content, err := s.openBlob(ctx, domain.OutcomeVersionBlobKey(outcome.ProjectID, outcome.ID, version.ID))
		if err != nil {
			return Download{}, err
		}
		return Download{File: version.File, Content: content}, nil
	}
	return Download{}, domain.ErrNotFound
}

func (s *Service) activeOutcome(ctx context.Context, projectID, outcomeID, actorID string) (domain.Outcome, error) {
	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Outcome{}, err
	}
	outcome, err := s.store.GetOutcome(ctx, outcomeID)
	if err != nil {
		return domain.Outcome{}, storeErr(err, nil)
	}
	if err := checkProject(outcome, projectID); err != nil {
		return domain.Outcome{}, err
	}
	return outcome, nil
}

func (s *Service) populateOutcomeUsers(ctx context.Context, outcome *domain.Outcome) error {
	ids := []string{outcome.CreatorID}
	for _, version := range outcome.Versions {
		ids = append(ids, version.CreatorID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return err
	}
	populateOutcome(outcome, users)
	return nil
}

func populateOutcome(outcome *domain.Outcome, users map[string]*domain.UserSummary) {
	outcome.Creator = users[outcome.CreatorID]
	for i := range outcome.Versions {
		outcome.Versions[i].Creator = users[outcome.Versions[i].CreatorID]
	}
}

func (s *Service) removeOutcomeBlobs(ctx context.Context, outcome domain.Outcome) {
	for _, version := range outcome.Versions {
		s.removeBlob(ctx, domain.OutcomeVersionBlobKey(outcome.ProjectID, outcome.ID, version.ID))
	}
}

func (s *Service) openBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	content, err := s.blobs.Open(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBlobStore, "open stored file", err)
	}
	return content, nil
}
