package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

const participantColumns = "id, project_id, user_id, status, show_on_timeline, created_at, updated_at"

// PutParticipant inserts a membership row. The (project, user) unique
// index turns a second invite into storage.ErrConflict.
func (s *Store) PutParticipant(ctx context.Context, participant domain.Participant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return putParticipantExec(ctx, s.sqlDB, participant)
}

func putParticipantExec(ctx context.Context, q queryer, participant domain.Participant) error {
	if strings.TrimSpace(participant.ID) == "" {
		return fmt.Errorf("participant id is required")
	}
	if !participant.Status.Valid() {
		return fmt.Errorf("participant status %q is invalid", participant.Status)
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO participants (`+participantColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		participant.ID,
		participant.ProjectID,
		participant.UserID,
		string(participant.Status),
		boolToInt(participant.ShowOnTimeline),
		toMillis(participant.CreatedAt),
		toMillis(participant.UpdatedAt),
	)
	return mapWriteError("put participant", err)
}

// GetParticipant loads the row for one project and user.
func (s *Store) GetParticipant(ctx context.Context, projectID string, userID string) (domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Participant{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE project_id = ? AND user_id = ?",
		projectID, userID,
	)
	participant, err := scanParticipant(row.Scan)
	if err != nil {
		return domain.Participant{}, mapReadError("get participant", err)
	}
	return participant, nil
}

// ListParticipants lists every row of a project, placeholders included.
func (s *Store) ListParticipants(ctx context.Context, projectID string) ([]domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE project_id = ? ORDER BY created_at, rowid",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := []domain.Participant{}
	for rows.Next() {
		participant, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// TransitionParticipant moves a row to status to only when its current
// status is one of from.
func (s *Store) TransitionParticipant(ctx context.Context, projectID string, userID string, from []domain.ParticipantStatus, to domain.ParticipantStatus, at time.Time) (domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Participant{}, err
	}
	if len(from) == 0 {
		return domain.Participant{}, fmt.Errorf("transition source statuses are required")
	}
	values := make([]string, 0, len(from))
	for _, status := range from {
		values = append(values, string(status))
	}
	query, args, err := squirrel.Update("participants").
		Set("status", string(to)).
		Set("updated_at", toMillis(at)).
		Where(squirrel.Eq{"project_id": projectID, "user_id": userID, "status": values}).
		ToSql()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("build participant transition: %w", err)
	}
	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("transition participant: %w", err)
	}
	if err := requireAffected(result, "transition participant"); err != nil {
		return domain.Participant{}, err
	}
	return s.GetParticipant(ctx, projectID, userID)
}

// SetShowOnTimeline toggles whether the user's view includes the project.
func (s *Store) SetShowOnTimeline(ctx context.Context, projectID string, userID string, show bool, at time.Time) (domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Participant{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE participants SET show_on_timeline = ?, updated_at = ?
WHERE project_id = ? AND user_id = ? AND status IN (?, ?)
`, boolToInt(show), toMillis(at), projectID, userID, string(domain.ParticipantPending), string(domain.ParticipantActive))
	if err != nil {
		return domain.Participant{}, fmt.Errorf("set show on timeline: %w", err)
	}
	if err := requireAffected(result, "set show on timeline"); err != nil {
		return domain.Participant{}, err
	}
	return s.GetParticipant(ctx, projectID, userID)
}

func scanParticipant(scan func(dest ...any) error) (domain.Participant, error) {
	var (
		participant          domain.Participant
		status               string
		show                 int
		createdAt, updatedAt int64
	)
	if err := scan(
		&participant.ID,
		&participant.ProjectID,
		&participant.UserID,
		&status,
		&show,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Participant{}, err
	}
	participant.Status = domain.ParticipantStatus(status)
	participant.ShowOnTimeline = show == 1
	participant.CreatedAt = fromMillis(createdAt)
	participant.UpdatedAt = fromMillis(updatedAt)
	return participant, nil
}

var _ storage.ParticipantStore = (*Store)(nil)
