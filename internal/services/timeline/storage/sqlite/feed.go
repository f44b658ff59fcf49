package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

// PutMessage appends a message.
func (s *Store) PutMessage(ctx context.Context, message domain.Message) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, "INSERT INTO messages (id, project_id, creator_id, message, created_at) VALUES (?, ?, ?, ?, ?)",
		message.ID, message.ProjectID, message.CreatorID, message.Text, toMillis(message.CreatedAt))
	return mapWriteError("put message", err)
}

// ListMessages lists a project's messages newest first.
func (s *Store) ListMessages(ctx context.Context, projectID string, cursor storage.Cursor) ([]domain.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	builder := squirrel.Select("id", "project_id", "creator_id", "message", "created_at").
		From("messages").
		Where(squirrel.Eq{"project_id": projectID})
	query, args, err := applyCursor(builder, "created_at", cursor).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages: %w", err)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	messages := []domain.Message{}
	for rows.Next() {
		var (
			message   domain.Message
			createdAt int64
		)
		if err := rows.Scan(&message.ID, &message.ProjectID, &message.CreatorID, &message.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.CreatedAt = fromMillis(createdAt)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// PutActivity appends an activity.
func (s *Store) PutActivity(ctx context.Context, activity domain.Activity) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(activity.Data)
	if err != nil {
		return fmt.Errorf("encode activity data: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO activities (id, project_id, actor_id, activity_type, object_type, data_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		activity.ID,
		activity.ProjectID,
		activity.ActorID,
		string(activity.ActivityType),
		string(activity.ObjectType),
		string(data),
		toMillis(activity.CreatedAt),
	)
	return mapWriteError("put activity", err)
}

// ListActivities lists a project's activities newest first.
func (s *Store) ListActivities(ctx context.Context, projectID string, cursor storage.Cursor) ([]domain.Activity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	builder := squirrel.Select("id", "project_id", "actor_id", "activity_type", "object_type", "data_json", "created_at").
		From("activities").
		Where(squirrel.Eq{"project_id": projectID})
	query, args, err := applyCursor(builder, "created_at", cursor).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list activities: %w", err)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()
	activities := []domain.Activity{}
	for rows.Next() {
		var (
			activity                 domain.Activity
			activityType, objectType string
			data                     string
			createdAt                int64
		)
		if err := rows.Scan(&activity.ID, &activity.ProjectID, &activity.ActorID, &activityType, &objectType, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &activity.Data); err != nil {
			return nil, fmt.Errorf("decode activity data: %w", err)
		}
		activity.ActivityType = domain.ActivityType(activityType)
		activity.ObjectType = domain.ObjectType(objectType)
		activity.CreatedAt = fromMillis(createdAt)
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}
