package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

const projectColumns = "id, title, description, goal, start_at, end_at, status, creator_id, owner_id, version, created_at, updated_at"

// CreateProject inserts the project and its owner participant in one
// transaction.
func (s *Store) CreateProject(ctx context.Context, project domain.Project, owner domain.Participant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(project.ID) == "" {
		return fmt.Errorf("project id is required")
	}
	if owner.ProjectID != project.ID {
		return fmt.Errorf("owner participant belongs to project %q, not %q", owner.ProjectID, project.ID)
	}
	return s.withTx(ctx, "project create", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO projects (`+projectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			project.ID,
			project.Title,
			project.Description,
			project.Goal,
			toMillis(project.Start),
			toNullMillis(project.End),
			string(project.Status),
			project.CreatorID,
			project.OwnerID,
			project.Version,
			toMillis(project.CreatedAt),
			toMillis(project.UpdatedAt),
		)
		if err != nil {
			return mapWriteError("insert project", err)
		}
		return putParticipantExec(ctx, tx, owner)
	})
}

// GetProject loads one project without participants.
func (s *Store) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Project{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", projectID)
	project, err := scanProject(row.Scan)
	if err != nil {
		return domain.Project{}, mapReadError("get project", err)
	}
	return project, nil
}

// UpdateProject writes project fields when the stored version matches.
func (s *Store) UpdateProject(ctx context.Context, project domain.Project, expectedVersion int64) (domain.Project, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Project{}, err
	}
	builder := squirrel.Update("projects").SetMap(map[string]any{
		"title":       project.Title,
		"description": project.Description,
		"goal":        project.Goal,
		"start_at":    toMillis(project.Start),
		"end_at":      toNullMillis(project.End),
		"status":      string(project.Status),
		"owner_id":    project.OwnerID,
		"updated_at":  toMillis(project.UpdatedAt),
	})
	if err := versionedUpdate(ctx, s.sqlDB, "projects", project.ID, expectedVersion, builder); err != nil {
		return domain.Project{}, err
	}
	project.Version = expectedVersion + 1
	return project, nil
}

// DeleteProject removes a project. Foreign keys cascade to every
// project-scoped table.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, "project delete", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM task_attachments WHERE task_id IN (SELECT id FROM tasks WHERE project_id = ?)
`, projectID); err != nil {
			return fmt.Errorf("delete project task attachments: %w", err)
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return requireAffected(result, "delete project")
	})
}

// ListProjects lists every project by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]domain.Project, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.queryProjects(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at, rowid")
}

// ListProjectsForUser lists projects where userID holds one of statuses.
func (s *Store) ListProjectsForUser(ctx context.Context, userID string, statuses []domain.ParticipantStatus) ([]domain.Project, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return []domain.Project{}, nil
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	query, args, err := squirrel.Select(prefixColumns("p", projectColumns)).
		From("projects p").
		Join("participants pa ON pa.project_id = p.id").
		Where(squirrel.Eq{"pa.user_id": userID, "pa.status": values}).
		OrderBy("p.created_at", "p.rowid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list projects for user: %w", err)
	}
	return s.queryProjects(ctx, query, args...)
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		project, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var (
		project              domain.Project
		status               string
		startAt              int64
		endAt                sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := scan(
		&project.ID,
		&project.Title,
		&project.Description,
		&project.Goal,
		&startAt,
		&endAt,
		&status,
		&project.CreatorID,
		&project.OwnerID,
		&project.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Project{}, err
	}
	project.Status = domain.ProjectStatus(status)
	project.Start = fromMillis(startAt)
	project.End = fromNullMillis(endAt)
	project.CreatedAt = fromMillis(createdAt)
	project.UpdatedAt = fromMillis(updatedAt)
	project.Participants = []domain.Participant{}
	return project, nil
}

func prefixColumns(alias string, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

var _ storage.ProjectStore = (*Store)(nil)
