package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

const (
	resourceColumns       = "id, project_id, creator_id, title, description, url, file_name, file_size, file_type, version, created_at, updated_at"
	outcomeColumns        = "id, project_id, creator_id, title, description, version, created_at, updated_at"
	outcomeVersionColumns = "id, outcome_id, file_name, file_size, file_type, creator_id, created_at"
)

// PutResource inserts a resource.
func (s *Store) PutResource(ctx context.Context, resource domain.Resource) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	name, size, fileType := fileColumns(resource.File)
	_, err := s.sqlDB.ExecContext(ctx, "INSERT INTO resources ("+resourceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		resource.ID,
		resource.ProjectID,
		resource.CreatorID,
		resource.Title,
		resource.Description,
		resource.URL,
		name,
		size,
		fileType,
		resource.Version,
		toMillis(resource.CreatedAt),
		toMillis(resource.UpdatedAt),
	)
	return mapWriteError("put resource", err)
}

// GetResource loads one resource.
func (s *Store) GetResource(ctx context.Context, resourceID string) (domain.Resource, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Resource{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+resourceColumns+" FROM resources WHERE id = ?", resourceID)
	resource, err := scanResource(row.Scan)
	if err != nil {
		return domain.Resource{}, mapReadError("get resource", err)
	}
	return resource, nil
}

// UpdateResource writes a resource guarded by version.
func (s *Store) UpdateResource(ctx context.Context, resource domain.Resource, expectedVersion int64) (domain.Resource, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Resource{}, err
	}
	name, size, fileType := fileColumns(resource.File)
	builder := squirrel.Update("resources").SetMap(map[string]any{
		"title":       resource.Title,
		"description": resource.Description,
		"url":         resource.URL,
		"file_name":   name,
		"file_size":   size,
		"file_type":   fileType,
		"updated_at":  toMillis(resource.UpdatedAt),
	})
	if err := versionedUpdate(ctx, s.sqlDB, "resources", resource.ID, expectedVersion, builder); err != nil {
		return domain.Resource{}, err
	}
	resource.Version = expectedVersion + 1
	return resource, nil
}

// DeleteResource removes a resource and detaches it from every task.
func (s *Store) DeleteResource(ctx context.Context, resourceID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, "resource delete", func(tx *sql.Tx) error {
		if err := detachEverywhere(ctx, tx, domain.AttachResource, resourceID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM resources WHERE id = ?", resourceID)
		if err != nil {
			return fmt.Errorf("delete resource: %w", err)
		}
		return requireAffected(result, "delete resource")
	})
}

// ListResources lists a project's resources in creation order.
func (s *Store) ListResources(ctx context.Context, projectID string) ([]domain.Resource, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT "+resourceColumns+" FROM resources WHERE project_id = ? ORDER BY created_at, rowid", projectID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()
	resources := []domain.Resource{}
	for rows.Next() {
		resource, err := scanResource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

// PutOutcome inserts an outcome and its versions.
func (s *Store) PutOutcome(ctx context.Context, outcome domain.Outcome) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, "outcome create", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO outcomes ("+outcomeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			outcome.ID,
			outcome.ProjectID,
			outcome.CreatorID,
			outcome.Title,
			outcome.Description,
			outcome.Version,
			toMillis(outcome.CreatedAt),
			toMillis(outcome.UpdatedAt),
		)
		if err != nil {
			return mapWriteError("put outcome", err)
		}
		for _, version := range outcome.Versions {
			if err := insertOutcomeVersion(ctx, tx, outcome.ID, version); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOutcome loads one outcome with its versions.
func (s *Store) GetOutcome(ctx context.Context, outcomeID string) (domain.Outcome, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Outcome{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+outcomeColumns+" FROM outcomes WHERE id = ?", outcomeID)
	outcome, err := scanOutcome(row.Scan)
	if err != nil {
		return domain.Outcome{}, mapReadError("get outcome", err)
	}
	outcomes := []domain.Outcome{outcome}
	if err := loadOutcomeVersions(ctx, s.sqlDB, outcomes); err != nil {
		return domain.Outcome{}, err
	}
	return outcomes[0], nil
}

// UpdateOutcome writes an outcome guarded by version and appends added.
func (s *Store) UpdateOutcome(ctx context.Context, outcome domain.Outcome, added *domain.OutcomeVersion, expectedVersion int64) (domain.Outcome, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Outcome{}, err
	}
	err := s.withTx(ctx, "outcome update", func(tx *sql.Tx) error {
		builder := squirrel.Update("outcomes").SetMap(map[string]any{
			"title":       outcome.Title,
			"description": outcome.Description,
			"updated_at":  toMillis(outcome.UpdatedAt),
		})
		if err := versionedUpdate(ctx, tx, "outcomes", outcome.ID, expectedVersion, builder); err != nil {
			return err
		}
		if added == nil {
			return nil
		}
		return insertOutcomeVersion(ctx, tx, outcome.ID, *added)
	})
	if err != nil {
		return domain.Outcome{}, err
	}
	outcome.Version = expectedVersion + 1
	return outcome, nil
}

// DeleteOutcome removes an outcome, its versions and its task references.
func (s *Store) DeleteOutcome(ctx context.Context, outcomeID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, "outcome delete", func(tx *sql.Tx) error {
		if err := detachEverywhere(ctx, tx, domain.AttachOutcome, outcomeID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM outcomes WHERE id = ?", outcomeID)
		if err != nil {
			return fmt.Errorf("delete outcome: %w", err)
		}
		return requireAffected(result, "delete outcome")
	})
}

// ListOutcomes lists a project's outcomes in creation order.
func (s *Store) ListOutcomes(ctx context.Context, projectID string) ([]domain.Outcome, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT "+outcomeColumns+" FROM outcomes WHERE project_id = ? ORDER BY created_at, rowid", projectID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	outcomes := []domain.Outcome{}
	for rows.Next() {
		outcome, err := scanOutcome(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	_ = rows.Close()
	if err := loadOutcomeVersions(ctx, s.sqlDB, outcomes); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func insertOutcomeVersion(ctx context.Context, q queryer, outcomeID string, version domain.OutcomeVersion) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO outcome_versions (id, outcome_id, seq, file_name, file_size, file_type, creator_id, created_at)
VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM outcome_versions WHERE outcome_id = ?), ?, ?, ?, ?, ?)
`,
		version.ID,
		outcomeID,
		outcomeID,
		version.File.Name,
		version.File.Size,
		version.File.Type,
		version.CreatorID,
		toMillis(version.CreatedAt),
	)
	return mapWriteError("insert outcome version", err)
}

func loadOutcomeVersions(ctx context.Context, q queryer, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	index := make(map[string]int, len(outcomes))
	ids := make([]string, 0, len(outcomes))
	for i := range outcomes {
		index[outcomes[i].ID] = i
		ids = append(ids, outcomes[i].ID)
		outcomes[i].Versions = []domain.OutcomeVersion{}
	}
	query, args, err := squirrel.Select(outcomeVersionColumns).
		From("outcome_versions").
		Where(squirrel.Eq{"outcome_id": ids}).
		OrderBy("outcome_id", "seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build outcome versions query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query outcome versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			version   domain.OutcomeVersion
			createdAt int64
		)
		if err := rows.Scan(&version.ID, &version.OutcomeID, &version.File.Name, &version.File.Size, &version.File.Type, &version.CreatorID, &createdAt); err != nil {
			return fmt.Errorf("scan outcome version: %w", err)
		}
		version.CreatedAt = fromMillis(createdAt)
		outcome := &outcomes[index[version.OutcomeID]]
		outcome.Versions = append(outcome.Versions, version)
	}
	return rows.Err()
}

func fileColumns(file *domain.FileInfo) (sql.NullString, sql.NullInt64, sql.NullString) {
	if file == nil {
		return sql.NullString{}, sql.NullInt64{}, sql.NullString{}
	}
	return sql.NullString{String: file.Name, Valid: true},
		sql.NullInt64{Int64: file.Size, Valid: true},
		sql.NullString{String: file.Type, Valid: true}
}

func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var (
		resource             domain.Resource
		fileName, fileType   sql.NullString
		fileSize             sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := scan(
		&resource.ID,
		&resource.ProjectID,
		&resource.CreatorID,
		&resource.Title,
		&resource.Description,
		&resource.URL,
		&fileName,
		&fileSize,
		&fileType,
		&resource.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Resource{}, err
	}
	if fileName.Valid {
		resource.File = &domain.FileInfo{Name: fileName.String, Size: fileSize.Int64, Type: fileType.String}
	}
	resource.CreatedAt = fromMillis(createdAt)
	resource.UpdatedAt = fromMillis(updatedAt)
	return resource, nil
}

func scanOutcome(scan func(dest ...any) error) (domain.Outcome, error) {
	var (
		outcome              domain.Outcome
		createdAt, updatedAt int64
	)
	if err := scan(
		&outcome.ID,
		&outcome.ProjectID,
		&outcome.CreatorID,
		&outcome.Title,
		&outcome.Description,
		&outcome.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Outcome{}, err
	}
	outcome.CreatedAt = fromMillis(createdAt)
	outcome.UpdatedAt = fromMillis(updatedAt)
	return outcome, nil
}

var _ storage.ResourceStore = (*Store)(nil)
