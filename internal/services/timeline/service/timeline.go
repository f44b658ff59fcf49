package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

// ListAnnotations lists a project's annotations in creation order.
func (s *Service) ListAnnotations(ctx context.Context, projectID, actorID string) ([]domain.Annotation, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	annotations, err := s.store.ListAnnotations(ctx, projectID)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	ids := make([]string, 0, len(annotations))
	for _, annotation := range annotations {
		ids = append(ids, annotation.CreatorID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range annotations {
		annotations[i].Creator = users[annotations[i].CreatorID]
	}
	return annotations, nil
}

// CreateAnnotation adds an annotation to a project.
func (s *Service) CreateAnnotation(ctx context.Context, projectID, actorID string, input domain.EntryInput) (annotation domain.Annotation, err error) {
	ctx, span := s.startSpan(ctx, "CreateAnnotation", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Annotation{}, err
	}
	annotation, err = domain.NewAnnotation(projectID, actorID, input, s.now, s.newID)
	if err != nil {
		return domain.Annotation{}, err
	}
	if err := s.store.PutAnnotation(ctx, annotation); err != nil {
		return domain.Annotation{}, storeErr(err, nil)
	}
	annotation.Creator, err = s.creator(ctx, annotation.CreatorID)
	if err != nil {
		return domain.Annotation{}, err
	}
	s.publish(ctx, event.ActionCreate, domain.ObjectAnnotation, annotation, actorID)
	return annotation, nil
}

// UpdateAnnotation edits an annotation.
func (s *Service) UpdateAnnotation(ctx context.Context, projectID, annotationID, actorID string, input domain.EntryInput) (annotation domain.Annotation, err error) {
	ctx, span := s.startSpan(ctx, "UpdateAnnotation", attribute.String("annotation.id", annotationID))
	defer func() { endSpan(span, err) }()

	current, err := s.activeAnnotation(ctx, projectID, annotationID, actorID)
	if err != nil {
		return domain.Annotation{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.Annotation{}, err
	}
	annotation, err = current.Apply(input, s.now)
	if err != nil {
		return domain.Annotation{}, err
	}
	annotation, err = s.store.UpdateAnnotation(ctx, annotation, current.Version)
	if err != nil {
		return domain.Annotation{}, storeErr(err, nil)
	}
	annotation.Creator, err = s.creator(ctx, annotation.CreatorID)
	if err != nil {
		return domain.Annotation{}, err
	}
	s.publish(ctx, event.ActionUpdate, domain.ObjectAnnotation, annotation, actorID)
	return annotation, nil
}

// DeleteAnnotation removes an annotation.
func (s *Service) DeleteAnnotation(ctx context.Context, projectID, annotationID, actorID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteAnnotation", attribute.String("annotation.id", annotationID))
	defer func() { endSpan(span, err) }()

	annotation, err := s.activeAnnotation(ctx, projectID, annotationID, actorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAnnotation(ctx, annotationID); err != nil {
		return storeErr(err, nil)
	}
	s.publish(ctx, event.ActionDelete, domain.ObjectAnnotation, annotation, actorID)
	return nil
}

func (s *Service) activeAnnotation(ctx context.Context, projectID, annotationID, actorID string) (domain.Annotation, error) {
	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Annotation{}, err
	}
	annotation, err := s.store.GetAnnotation(ctx, annotationID)
	if err != nil {
		return domain.Annotation{}, storeErr(err, nil)
	}
	if err := checkProject(annotation, projectID); err != nil {
		return domain.Annotation{}, err
	}
	return annotation, nil
}

// ListMilestones lists a project's milestones in creation order.
func (s *Service) ListMilestones(ctx context.Context, projectID, actorID string) ([]domain.Milestone, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	milestones, err := s.store.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	ids := make([]string, 0, len(milestones))
	for _, milestone := range milestones {
		ids = append(ids, milestone.CreatorID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range milestones {
		milestones[i].Creator = users[milestones[i].CreatorID]
	}
	return milestones, nil
}

// CreateMilestone adds a milestone to a project.
func (s *Service) CreateMilestone(ctx context.Context, projectID, actorID string, input domain.EntryInput) (milestone domain.Milestone, err error) {
	ctx, span := s.startSpan(ctx, "CreateMilestone", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Milestone{}, err
	}
	milestone, err = domain.NewMilestone(projectID, actorID, input, s.now, s.newID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := s.store.PutMilestone(ctx, milestone); err != nil {
		return domain.Milestone{}, storeErr(err, nil)
	}
	milestone.Creator, err = s.creator(ctx, milestone.CreatorID)
	if err != nil {
		return domain.Milestone{}, err
	}
	s.publish(ctx, event.ActionCreate, domain.ObjectMilestone, milestone, actorID)
	return milestone, nil
}

// UpdateMilestone edits a milestone.
func (s *Service) UpdateMilestone(ctx context.Context, projectID, milestoneID, actorID string, input domain.EntryInput) (milestone domain.Milestone, err error) {
	ctx, span := s.startSpan(ctx, "UpdateMilestone", attribute.String("milestone.id", milestoneID))
	defer func() { endSpan(span, err) }()

	current, err := s.activeMilestone(ctx, projectID, milestoneID, actorID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.Milestone{}, err
	}
	milestone, err = current.Apply(input, s.now)
	if err != nil {
		return domain.Milestone{}, err
	}
	milestone, err = s.store.UpdateMilestone(ctx, milestone, current.Version)
	if err != nil {
		return domain.Milestone{}, storeErr(err, nil)
	}
	milestone.Creator, err = s.creator(ctx, milestone.CreatorID)
	if err != nil {
		return domain.Milestone{}, err
	}
	s.publish(ctx, event.ActionUpdate, domain.ObjectMilestone, milestone, actorID)
	return milestone, nil
}

// DeleteMilestone removes a milestone.
func (s *Service) DeleteMilestone(ctx context.Context, projectID, milestoneID, actorID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteMilestone", attribute.String("milestone.id", milestoneID))
	defer func() { endSpan(span, err) }()

	milestone, err := s.activeMilestone(ctx, projectID, milestoneID, actorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMilestone(ctx, milestoneID); err != nil {
		return storeErr(err, nil)
	}
	s.publish(ctx, event.ActionDelete, domain.ObjectMilestone, milestone, actorID)
	return nil
}

func (s *Service) activeMilestone(ctx context.Context, projectID, milestoneID, actorID string) (domain.Milestone, error) {
	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Milestone{}, err
	}
	milestone, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, storeErr(err, nil)
	}
	if err := checkProject(milestone, projectID); err != nil {
		return domain.Milestone{}, err
	}
	return milestone, nil
}

// ListTasks lists a project's tasks in creation order.
func (s *Service) ListTasks(ctx context.Context, projectID, actorID string) ([]domain.Task, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.CreatorID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Creator = users[tasks[i].CreatorID]
	}
	return tasks, nil
}

// CreateTask adds a task to a project.
func (s *Service) CreateTask(ctx context.Context, projectID, actorID string, input domain.EntryInput) (task domain.Task, err error) {
	ctx, span := s.startSpan(ctx, "CreateTask", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Task{}, err
	}
	task, err = domain.NewTask(projectID, actorID, input, s.now, s.newID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.store.PutTask(ctx, task); err != nil {
		return domain.Task{}, storeErr(err, nil)
	}
	task.Creator, err = s.creator(ctx, task.CreatorID)
	if err != nil {
		return domain.Task{}, err
	}
	s.publish(ctx, event.ActionCreate, domain.ObjectTask, task, actorID)
	return task, nil
}

// UpdateTask edits a task. Omitting both dates takes it off the timeline.
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID, actorID string, input domain.EntryInput) (task domain.Task, err error) {
	ctx, span := s.startSpan(ctx, "UpdateTask", attribute.String("task.id", taskID))
	defer func() { endSpan(span, err) }()

	current, err := s.activeTask(ctx, projectID, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.Task{}, err
	}
	task, err = current.Apply(input, s.now)
	if err != nil {
		return domain.Task{}, err
	}
	task, err = s.store.UpdateTask(ctx, task, current.Version)
	if err != nil {
		return domain.Task{}, storeErr(err, nil)
	}
	task.Creator, err = s.creator(ctx, task.CreatorID)
	if err != nil {
		return domain.Task{}, err
	}
	s.publish(ctx, event.ActionUpdate, domain.ObjectTask, task, actorID)
	return task, nil
}

// DeleteTask removes a task with its attachments.
func (s *Service) DeleteTask(ctx context.Context, projectID, taskID, actorID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteTask", attribute.String("task.id", taskID))
	defer func() { endSpan(span, err) }()

	task, err := s.activeTask(ctx, projectID, taskID, actorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return storeErr(err, nil)
	}
	s.publish(ctx, event.ActionDelete, domain.ObjectTask, task, actorID)
	return nil
}

func (s *Service) activeTask(ctx context.Context, projectID, taskID, actorID string) (domain.Task, error) {
	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Task{}, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, storeErr(err, nil)
	}
	if err := checkProject(task, projectID); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Move places an annotation, milestone or task at new dates. The caller
// must be an active participant of the entity's project.
func (s *Service) Move(ctx context.Context, objectType domain.ObjectType, entityID, actorID string, input domain.MoveInput) (moved domain.MoveRecord, err error) {
	ctx, span := s.startSpan(ctx, "Move",
		attribute.String("object.type", string(objectType)),
		attribute.String("object.id", entityID),
	)
	defer func() { endSpan(span, err) }()

	switch objectType {
	case domain.ObjectAnnotation:
		moved, err = s.moveAnnotation(ctx, entityID, actorID, input)
	case domain.ObjectMilestone:
		moved, err = s.moveMilestone(ctx, entityID, actorID, input)
	case domain.ObjectTask:
		moved, err = s.moveTask(ctx, entityID, actorID, input)
	default:
		return domain.MoveRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MoveRecord{}, err
	}
	s.publish(ctx, event.ActionMove, objectType, moved, actorID)
	return moved, nil
}

func (s *Service) moveAnnotation(ctx context.Context, annotationID, actorID string, input domain.MoveInput) (domain.MoveRecord, error) {
	current, err := s.store.GetAnnotation(ctx, annotationID)
	if err != nil {
		return domain.MoveRecord{}, storeErr(err, nil)
	}
	if _, err := s.gate.RequireActiveParticipant(ctx, current.ProjectID, actorID); err != nil {
		return domain.MoveRecord{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.MoveRecord{}, err
	}
	moved, err := current.Move(input, s.now)
	if err != nil {
		return domain.MoveRecord{}, err
	}
	moved, err = s.store.UpdateAnnotation(ctx, moved, current.Version)
	if err != nil {
		return domain.MoveRecord{}, storeErr(err, nil)
	}
	return moved.MoveRecord(), nil
}

func (s *Service) moveMilestone(ctx context.Context, milestoneID, actorID string, input domain.MoveInput) (domain.MoveRecord, error) {
	current, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.MoveRecord{}, storeErr(err, nil)
	}
	if _, err := s.gate.RequireActiveParticipant(ctx, current.ProjectID, actorID); err != nil {
		return domain.MoveRecord{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.MoveRecord{}, err
	}
	moved, err := current.Move(input, s.now)
	if err != nil {
		return domain.MoveRecord{}, err
	}
	moved, err = s.store.UpdateMilestone(ctx, moved, current.Version)
	if err != nil {
		return domain.MoveRecord{}, storeErr(err, nil)
	}
	return moved.MoveRecord(), nil
}

func (s *Service) moveTask(ctx context.Context, taskID, actorID string, input domain.MoveInput) (domain.MoveRecord, error) {
	current, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.MoveRecord{}, storeErr(err, nil)
	}
	if _, err := s.gate.RequireActiveParticipant(ctx, current.ProjectID, actorID); err != nil {
		return domain.MoveRecord{}, err
	}
	if err := checkVersion(input.Version, current.Version); err != nil {
		return domain.MoveRecord{}, err
	}
	moved, err := current.Move(input, s.now)
	if err != nil {
		return domain.MoveRecord{}, err
	}
	moved, err = s.store.UpdateTask(ctx, moved, current.Version)
	if err != nil {
		return domain.MoveRecord{}, storeErr(err, nil)
	}
	return moved.MoveRecord(), nil
}

// Attach links a participant, resource or outcome of the same project to
// a task.
func (s *Service) Attach(ctx context.Context, projectID, taskID string, kind domain.AttachmentKind, refID, actorID string) (domain.Task, error) {
	return s.changeAttachment(ctx, projectID, taskID, kind, refID, actorID, false)
}

// Detach unlinks a reference from a task.
func (s *Service) Detach(ctx context.Context, projectID, taskID string, kind domain.AttachmentKind, refID, actorID string) (domain.Task, error) {
	return s.changeAttachment(ctx, projectID, taskID, kind, refID, actorID, true)
}

func (s *Service) changeAttachment(ctx context.Context, projectID, taskID string, kind domain.AttachmentKind, refID, actorID string, detach bool) (task domain.Task, err error) {
	name := "Attach"
	if detach {
		name = "Detach"
	}
	ctx, span := s.startSpan(ctx, name,
		attribute.String("task.id", taskID),
		attribute.String("attachment.kind", string(kind)),
	)
	defer func() { endSpan(span, err) }()

	current, err := s.activeTask(ctx, projectID, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	title, err := s.attachmentTitle(ctx, projectID, kind, refID, detach)
	if err != nil {
		return domain.Task{}, err
	}
	// The store still rejects a racing duplicate or missing reference.
	if detach {
		_, err = current.Detach(kind, refID)
	} else {
		_, err = current.Attach(kind, refID)
	}
	if err != nil {
		return domain.Task{}, err
	}
	at := domain.Stamp(s.now())
	if detach {
		task, err = s.store.DetachFromTask(ctx, current.ID, kind, refID, at)
		if err != nil {
			return domain.Task{}, storeErr(err, domain.ErrNotAttached)
		}
	} else {
		task, err = s.store.AttachToTask(ctx, current.ID, kind, refID, at)
		if errors.Is(err, storage.ErrConflict) {
			return domain.Task{}, domain.ErrAlreadyAttached
		}
		if err != nil {
			return domain.Task{}, storeErr(err, nil)
		}
	}
	task.Creator, err = s.creator(ctx, task.CreatorID)
	if err != nil {
		return domain.Task{}, err
	}
	s.events.Publish(ctx, event.Event{
		Action:     event.ActionUpdate,
		ObjectType: domain.ObjectTask,
		Data:       task,
		ActorID:    actorID,
		Attachment: &domain.Attachment{Kind: kind, RefID: refID, RefTitle: title, Detached: detach},
	})
	return task, nil
}

// attachmentTitle resolves the reference in projectID and returns its
// display title. A detach tolerates references that no longer exist.
func (s *Service) attachmentTitle(ctx context.Context, projectID string, kind domain.AttachmentKind, refID string, detach bool) (string, error) {
	var (
		title string
		err   error
	)
	switch kind {
	case domain.AttachParticipant:
		var participant domain.Participant
		participant, err = s.store.GetParticipant(ctx, projectID, refID)
		if err == nil && participant.Status != domain.ParticipantActive && !detach {
			err = storage.ErrNotFound
		}
		if err == nil {
			users, usersErr := s.summaries(ctx, refID)
			if usersErr != nil {
				return "", usersErr
			}
			if user := users[refID]; user != nil {
				title = user.Name.Full()
			}
		}
	case domain.AttachResource:
		var resource domain.Resource
		resource, err = s.store.GetResource(ctx, refID)
		if err == nil && resource.ProjectID != projectID {
			err = storage.ErrNotFound
		}
		title = resource.Title
	case domain.AttachOutcome:
		var outcome domain.Outcome
		outcome, err = s.store.GetOutcome(ctx, refID)
		if err == nil && outcome.ProjectID != projectID {
			err = storage.ErrNotFound
		}
		title = outcome.Title
	default:
		return "", domain.ErrInvalidAttachmentKind
	}
	if errors.Is(err, storage.ErrNotFound) && detach {
		return "", nil
	}
	if err != nil {
		return "", storeErr(err, nil)
	}
	return title, nil
}

func (s *Service) creator(ctx context.Context, userID string) (*domain.UserSummary, error) {
	users, err := s.summaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	return users[userID], nil
}
