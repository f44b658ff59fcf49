package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

// ListMessages returns one newest-first page of a project's messages.
func (s *Service) ListMessages(ctx context.Context, projectID, actorID string, cursor storage.Cursor) ([]domain.Message, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	limit, err := domain.PageLimit(cursor.Limit)
	if err != nil {
		return nil, err
	}
	cursor.Limit = limit
	messages, err := s.store.ListMessages(ctx, projectID, cursor)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.CreatorID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Creator = users[messages[i].CreatorID]
	}
	return messages, nil
}

// CreateMessage posts a message to a project.
func (s *Service) CreateMessage(ctx context.Context, projectID, actorID, text string) (message domain.Message, err error) {
	ctx, span := s.startSpan(ctx, "CreateMessage", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Message{}, err
	}
	message, err = domain.NewMessage(projectID, actorID, text, s.now, s.newID)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.store.PutMessage(ctx, message); err != nil {
		return domain.Message{}, storeErr(err, nil)
	}
	message.Creator, err = s.creator(ctx, actorID)
	if err != nil {
		return domain.Message{}, err
	}
	s.publish(ctx, event.ActionCreate, domain.ObjectMessage, message, actorID)
	return message, nil
}

// ListActivities returns one newest-first page of a project's feed.
func (s *Service) ListActivities(ctx context.Context, projectID, actorID string, cursor storage.Cursor) ([]domain.Activity, error) {
	if _, err := s.gate.RequireAnyParticipant(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	limit, err := domain.PageLimit(cursor.Limit)
	if err != nil {
		return nil, err
	}
	cursor.Limit = limit
	activities, err := s.store.ListActivities(ctx, projectID, cursor)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	ids := make([]string, 0, len(activities))
	for _, activity := range activities {
		ids = append(ids, activity.ActorID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range activities {
		activities[i].Actor = users[activities[i].ActorID]
	}
	return activities, nil
}
