package gate

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

type fakeStore struct {
	projects     map[string]domain.Project
	participants map[string]domain.Participant
	err          error
}

func (f fakeStore) GetProject(_ context.Context, projectID string) (domain.Project, error) {
	if f.err != nil {
		return domain.Project{}, f.err
	}
	project, ok := f.projects[projectID]
	if !ok {
		return domain.Project{}, storage.ErrNotFound
	}
	return project, nil
}

func (f fakeStore) GetParticipant(_ context.Context, projectID, userID string) (domain.Participant, error) {
	if f.err != nil {
		return domain.Participant{}, f.err
	}
	participant, ok := f.participants[projectID+"/"+userID]
	if !ok {
		return domain.Participant{}, storage.ErrNotFound
	}
	return participant, nil
}

func newFakeStore() fakeStore {
	return fakeStore{
		projects: map[string]domain.Project{"p1": {ID: "p1", OwnerID: "owner"}},
		participants: map[string]domain.Participant{
			"p1/owner":   {ProjectID: "p1", UserID: "owner", Status: domain.ParticipantActive},
			"p1/pending": {ProjectID: "p1", UserID: "pending", Status: domain.ParticipantPending},
			"p1/gone":    {ProjectID: "p1", UserID: "gone", Status: domain.ParticipantPlaceholder},
		},
	}
}

func TestGateDecisions(t *testing.T) {
	g := New(newFakeStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		check func() error
		want  error
	}{
		{"owner passes owner check", func() error { _, err := g.RequireOwner(ctx, "p1", "owner"); return err }, nil},
		{"participant fails owner check", func() error { _, err := g.RequireOwner(ctx, "p1", "pending"); return err }, domain.ErrNotProjectOwner},
		{"missing project", func() error { _, err := g.RequireOwner(ctx, "nope", "owner"); return err }, domain.ErrNotFound},
		{"pending is any participant", func() error { _, err := g.RequireAnyParticipant(ctx, "p1", "pending"); return err }, nil},
		{"pending is not active", func() error { _, err := g.RequireActiveParticipant(ctx, "p1", "pending"); return err }, domain.ErrNotProjectParticipant},
		{"active passes active", func() error { _, err := g.RequireActiveParticipant(ctx, "p1", "owner"); return err }, nil},
		{"placeholder has no access", func() error { _, err := g.RequireAnyParticipant(ctx, "p1", "gone"); return err }, domain.ErrNotProjectParticipant},
		{"stranger has no access", func() error { _, err := g.RequireAnyParticipant(ctx, "p1", "stranger"); return err }, domain.ErrNotProjectParticipant},
		{"pending passes pending", func() error { _, err := g.RequirePendingParticipant(ctx, "p1", "pending"); return err }, nil},
		{"active is not pending", func() error { _, err := g.RequirePendingParticipant(ctx, "p1", "owner"); return err }, domain.ErrNotProjectParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.check(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGateStoreFailureIsUnavailable(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk on fire")
	g := New(store)

	_, err := g.RequireActiveParticipant(context.Background(), "p1", "owner")
	if code := apperrors.CodeOf(err); code != apperrors.CodePersistenceUnavailable {
		t.Fatalf("expected persistence unavailable, got %v", code)
	}
	if code := apperrors.CodeOf(err); code.HTTPStatus() != 503 {
		t.Fatalf("expected 503, got %d", code.HTTPStatus())
	}
}
