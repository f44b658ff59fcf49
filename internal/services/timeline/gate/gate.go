// Package gate decides whether a user may act on a project, based only on
// stored membership.
package gate

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

// Store is the membership read surface the gate needs.
type Store interface {
	GetProject(ctx context.Context, projectID string) (domain.Project, error)
	GetParticipant(ctx context.Context, projectID string, userID string) (domain.Participant, error)
}

// Gate answers access questions for (project, user) pairs.
type Gate struct {
	store Store
}

// New builds a gate over store.
func New(store Store) *Gate {
	return &Gate{store: store}
}

// RequireOwner passes when userID owns the project.
func (g *Gate) RequireOwner(ctx context.Context, projectID, userID string) (domain.Project, error) {
	project, err := g.store.GetProject(ctx, strings.TrimSpace(projectID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Project{}, domain.ErrNotFound
		}
		return domain.Project{}, unavailable(err)
	}
	if project.OwnerID != userID {
		return domain.Project{}, domain.ErrNotProjectOwner
	}
	return project, nil
}

// RequireAnyParticipant passes for pending and active participants.
func (g *Gate) RequireAnyParticipant(ctx context.Context, projectID, userID string) (domain.Participant, error) {
	return g.require(ctx, projectID, userID, domain.ParticipantPending, domain.ParticipantActive)
}

// RequireActiveParticipant passes for active participants.
func (g *Gate) RequireActiveParticipant(ctx context.Context, projectID, userID string) (domain.Participant, error) {
	return g.require(ctx, projectID, userID, domain.ParticipantActive)
}

// RequirePendingParticipant passes for participants with an open invitation.
func (g *Gate) RequirePendingParticipant(ctx context.Context, projectID, userID string) (domain.Participant, error) {
	return g.require(ctx, projectID, userID, domain.ParticipantPending)
}

func (g *Gate) require(ctx context.Context, projectID, userID string, allowed ...domain.ParticipantStatus) (domain.Participant, error) {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return domain.Participant{}, domain.ErrNotProjectParticipant
	}
	participant, err := g.store.GetParticipant(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Participant{}, domain.ErrNotProjectParticipant
		}
		return domain.Participant{}, unavailable(err)
	}
	for _, status := range allowed {
		if participant.Status == status {
			return participant, nil
		}
	}
	return domain.Participant{}, domain.ErrNotProjectParticipant
}

func unavailable(err error) error {
	return apperrors.Wrap(apperrors.CodePersistenceUnavailable, "membership store unavailable", err)
}
