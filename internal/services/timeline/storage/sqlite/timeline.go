package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

const (
	annotationColumns = "id, project_id, creator_id, title, description, start_at, version, created_at, updated_at"
	milestoneColumns  = "id, project_id, creator_id, title, description, start_at, color, version, created_at, updated_at"
	taskColumns       = "id, project_id, creator_id, title, description, start_at, end_at, version, created_at, updated_at"
)

// PutAnnotation inserts an annotation.
func (s *Store) PutAnnotation(ctx context.Context, annotation domain.Annotation) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, "INSERT INTO annotations ("+annotationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		annotation.ID,
		annotation.ProjectID,
		annotation.CreatorID,
		annotation.Title,
		annotation.Description,
		toMillis(annotation.Start),
		annotation.Version,
		toMillis(annotation.CreatedAt),
		toMillis(annotation.UpdatedAt),
	)
	return mapWriteError("put annotation", err)
}

// GetAnnotation loads one annotation.
func (s *Store) GetAnnotation(ctx context.Context, annotationID string) (domain.Annotation, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Annotation{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+annotationColumns+" FROM annotations WHERE id = ?", annotationID)
	annotation, err := scanAnnotation(row.Scan)
	if err != nil {
		return domain.Annotation{}, mapReadError("get annotation", err)
	}
	return annotation, nil
}

// UpdateAnnotation writes an annotation guarded by version.
func (s *Store) UpdateAnnotation(ctx context.Context, annotation domain.Annotation, expectedVersion int64) (domain.Annotation, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Annotation{}, err
	}
	builder := squirrel.Update("annotations").SetMap(map[string]any{
		"title":       annotation.Title,
		"description": annotation.Description,
		"start_at":    toMillis(annotation.Start),
		"updated_at":  toMillis(annotation.UpdatedAt),
	})
	if err := versionedUpdate(ctx, s.sqlDB, "annotations", annotation.ID, expectedVersion, builder); err != nil {
		return domain.Annotation{}, err
	}
	annotation.Version = expectedVersion + 1
	return annotation, nil
}

// DeleteAnnotation removes one annotation.
func (s *Store) DeleteAnnotation(ctx context.Context, annotationID string) error {
	return s.deleteByID(ctx, "annotations", annotationID)
}

// ListAnnotations lists a project's annotations in creation order.
func (s *Store) ListAnnotations(ctx context.Context, projectID string) ([]domain.Annotation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT "+annotationColumns+" FROM annotations WHERE project_id = ? ORDER BY created_at, rowid", projectID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()
	annotations := []domain.Annotation{}
	for rows.Next() {
		annotation, err := scanAnnotation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		annotations = append(annotations, annotation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return annotations, nil
}

// PutMilestone inserts a milestone.
func (s *Store) PutMilestone(ctx context.Context, milestone domain.Milestone) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, "INSERT INTO milestones ("+milestoneColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		milestone.ID,
		milestone.ProjectID,
		milestone.CreatorID,
		milestone.Title,
		milestone.Description,
		toMillis(milestone.Start),
		milestone.Color,
		milestone.Version,
		toMillis(milestone.CreatedAt),
		toMillis(milestone.UpdatedAt),
	)
	return mapWriteError("put milestone", err)
}

// GetMilestone loads one milestone.
func (s *Store) GetMilestone(ctx context.Context, milestoneID string) (domain.Milestone, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Milestone{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+milestoneColumns+" FROM milestones WHERE id = ?", milestoneID)
	milestone, err := scanMilestone(row.Scan)
	if err != nil {
		return domain.Milestone{}, mapReadError("get milestone", err)
	}
	return milestone, nil
}

// UpdateMilestone writes a milestone guarded by version.
func (s *Store) UpdateMilestone(ctx context.Context, milestone domain.Milestone, expectedVersion int64) (domain.Milestone, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Milestone{}, err
	}
	builder := squirrel.Update("milestones").SetMap(map[string]any{
		"title":       milestone.Title,
		"description": milestone.Description,
		"start_at":    toMillis(milestone.Start),
		"color":       milestone.Color,
		"updated_at":  toMillis(milestone.UpdatedAt),
	})
	if err := versionedUpdate(ctx, s.sqlDB, "milestones", milestone.ID, expectedVersion, builder); err != nil {
		return domain.Milestone{}, err
	}
	milestone.Version = expectedVersion + 1
	return milestone, nil
}

// DeleteMilestone removes one milestone.
func (s *Store) DeleteMilestone(ctx context.Context, milestoneID string) error {
	return s.deleteByID(ctx, "milestones", milestoneID)
}

// ListMilestones lists a project's milestones in creation order.
func (s *Store) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT "+milestoneColumns+" FROM milestones WHERE project_id = ? ORDER BY created_at, rowid", projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()
	milestones := []domain.Milestone{}
	for rows.Next() {
		milestone, err := scanMilestone(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, milestone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return milestones, nil
}

// PutTask inserts a task and its initial references.
func (s *Store) PutTask(ctx context.Context, task domain.Task) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, "task create", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			task.ID,
			task.ProjectID,
			task.CreatorID,
			task.Title,
			task.Description,
			toNullMillis(task.Start),
			toNullMillis(task.End),
			task.Version,
			toMillis(task.CreatedAt),
			toMillis(task.UpdatedAt),
		)
		if err != nil {
			return mapWriteError("put task", err)
		}
		for kind, refs := range map[domain.AttachmentKind][]string{
			domain.AttachParticipant: task.ParticipantIDs,
			domain.AttachResource:    task.ResourceIDs,
			domain.AttachOutcome:     task.OutcomeIDs,
		} {
			for _, refID := range refs {
				if err := insertAttachment(ctx, tx, task.ID, kind, refID, task.CreatedAt); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetTask loads one task with its references.
func (s *Store) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Task{}, err
	}
	return getTask(ctx, s.sqlDB, taskID)
}

func getTask(ctx context.Context, q queryer, taskID string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", taskID)
	task, err := scanTask(row.Scan)
	if err != nil {
		return domain.Task{}, mapReadError("get task", err)
	}
	tasks := []domain.Task{task}
	if err := loadAttachments(ctx, q, tasks); err != nil {
		return domain.Task{}, err
	}
	return tasks[0], nil
}

// UpdateTask writes task fields guarded by version. References are
// changed through AttachToTask and DetachFromTask only.
func (s *Store) UpdateTask(ctx context.Context, task domain.Task, expectedVersion int64) (domain.Task, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Task{}, err
	}
	builder := squirrel.Update("tasks").SetMap(map[string]any{
		"title":       task.Title,
		"description": task.Description,
		"start_at":    toNullMillis(task.Start),
		"end_at":      toNullMillis(task.End),
		"updated_at":  toMillis(task.UpdatedAt),
	})
	if err := versionedUpdate(ctx, s.sqlDB, "tasks", task.ID, expectedVersion, builder); err != nil {
		return domain.Task{}, err
	}
	task.Version = expectedVersion + 1
	return task, nil
}

// DeleteTask removes one task and its references.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	return s.deleteByID(ctx, "tasks", taskID)
}

// ListTasks lists a project's tasks in creation order.
func (s *Store) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE project_id = ? ORDER BY created_at, rowid", projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	_ = rows.Close()
	if err := loadAttachments(ctx, s.sqlDB, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// AttachToTask adds a reference and bumps the task version.
func (s *Store) AttachToTask(ctx context.Context, taskID string, kind domain.AttachmentKind, refID string, at time.Time) (domain.Task, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Task{}, err
	}
	var task domain.Task
	err := s.withTx(ctx, "task attach", func(tx *sql.Tx) error {
		if err := insertAttachment(ctx, tx, taskID, kind, refID, at); err != nil {
			return err
		}
		var err error
		task, err = touchTask(ctx, tx, taskID, at)
		return err
	})
	return task, err
}

// DetachFromTask removes a reference and bumps the task version.
func (s *Store) DetachFromTask(ctx context.Context, taskID string, kind domain.AttachmentKind, refID string, at time.Time) (domain.Task, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Task{}, err
	}
	var task domain.Task
	err := s.withTx(ctx, "task detach", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM task_attachments WHERE task_id = ? AND kind = ? AND ref_id = ?", taskID, string(kind), refID)
		if err != nil {
			return fmt.Errorf("delete task attachment: %w", err)
		}
		if err := requireAffected(result, "delete task attachment"); err != nil {
			return err
		}
		task, err = touchTask(ctx, tx, taskID, at)
		return err
	})
	return task, err
}

func insertAttachment(ctx context.Context, q queryer, taskID string, kind domain.AttachmentKind, refID string, at time.Time) error {
	_, err := q.ExecContext(ctx, "INSERT INTO task_attachments (task_id, kind, ref_id, created_at) VALUES (?, ?, ?, ?)",
		taskID, string(kind), refID, toMillis(at))
	return mapWriteError("insert task attachment", err)
}

func touchTask(ctx context.Context, q queryer, taskID string, at time.Time) (domain.Task, error) {
	result, err := q.ExecContext(ctx, "UPDATE tasks SET version = version + 1, updated_at = ? WHERE id = ?", toMillis(at), taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("touch task: %w", err)
	}
	if err := requireAffected(result, "touch task"); err != nil {
		return domain.Task{}, err
	}
	return getTask(ctx, q, taskID)
}

// detachEverywhere drops a reference from every task that holds it.
func detachEverywhere(ctx context.Context, q queryer, kind domain.AttachmentKind, refID string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM task_attachments WHERE kind = ? AND ref_id = ?", string(kind), refID); err != nil {
		return fmt.Errorf("detach %s %s: %w", kind, refID, err)
	}
	return nil
}

func loadAttachments(ctx context.Context, q queryer, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	index := make(map[string]int, len(tasks))
	ids := make([]string, 0, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
		ids = append(ids, tasks[i].ID)
	}
	query, args, err := squirrel.Select("task_id", "kind", "ref_id").
		From("task_attachments").
		Where(squirrel.Eq{"task_id": ids}).
		OrderBy("created_at", "rowid").
		ToSql()
	if err != nil {
		return fmt.Errorf("build task attachments query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query task attachments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, kind, refID string
		if err := rows.Scan(&taskID, &kind, &refID); err != nil {
			return fmt.Errorf("scan task attachment: %w", err)
		}
		task := &tasks[index[taskID]]
		switch domain.AttachmentKind(kind) {
		case domain.AttachParticipant:
			task.ParticipantIDs = append(task.ParticipantIDs, refID)
		case domain.AttachResource:
			task.ResourceIDs = append(task.ResourceIDs, refID)
		case domain.AttachOutcome:
			task.OutcomeIDs = append(task.OutcomeIDs, refID)
		}
	}
	return rows.Err()
}

func (s *Store) deleteByID(ctx context.Context, table string, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return requireAffected(result, "delete from "+table)
}

func scanAnnotation(scan func(dest ...any) error) (domain.Annotation, error) {
	var (
		annotation                    domain.Annotation
		startAt, createdAt, updatedAt int64
	)
	if err := scan(
		&annotation.ID,
		&annotation.ProjectID,
		&annotation.CreatorID,
		&annotation.Title,
		&annotation.Description,
		&startAt,
		&annotation.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Annotation{}, err
	}
	annotation.Start = fromMillis(startAt)
	annotation.CreatedAt = fromMillis(createdAt)
	annotation.UpdatedAt = fromMillis(updatedAt)
	return annotation, nil
}

func scanMilestone(scan func(dest ...any) error) (domain.Milestone, error) {
	var (
		milestone                     domain.Milestone
		startAt, createdAt, updatedAt int64
	)
	if err := scan(
		&milestone.ID,
		&milestone.ProjectID,
		&milestone.CreatorID,
		&milestone.Title,
		&milestone.Description,
		&startAt,
		&milestone.Color,
		&milestone.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Milestone{}, err
	}
	milestone.Start = fromMillis(startAt)
	milestone.CreatedAt = fromMillis(createdAt)
	milestone.UpdatedAt = fromMillis(updatedAt)
	return milestone, nil
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var (
		task                 domain.Task
		startAt, endAt       sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := scan(
		&task.ID,
		&task.ProjectID,
		&task.CreatorID,
		&task.Title,
		&task.Description,
		&startAt,
		&endAt,
		&task.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Task{}, err
	}
	task.Start = fromNullMillis(startAt)
	task.End = fromNullMillis(endAt)
	task.CreatedAt = fromMillis(createdAt)
	task.UpdatedAt = fromMillis(updatedAt)
	task.ParticipantIDs = []string{}
	task.ResourceIDs = []string{}
	task.OutcomeIDs = []string{}
	return task, nil
}

var _ storage.TimelineStore = (*Store)(nil)
