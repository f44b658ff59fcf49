// Package storage declares the persistence contracts of the timeline
// service.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write that violates a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrVersionConflict indicates a write against a stale version.
	ErrVersionConflict = errors.New("record version conflict")
)

// Cursor selects one page of a newest-first listing.
type Cursor struct {
	// Before only returns records created strictly earlier.
	Before *time.Time
	// BeforeID breaks ties on Before: records created at exactly Before
	// are returned when their ID sorts below BeforeID.
	BeforeID string
	Limit    int
}

// UserStore persists accounts and social identities.
type UserStore interface {
	PutUser(ctx context.Context, user domain.User) error
	UpdateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByConfirmationKey(ctx context.Context, key string) (domain.User, error)
	GetUsers(ctx context.Context, userIDs []string) (map[string]domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SearchUsers(ctx context.Context, term string, limit int) ([]domain.User, error)
	DeleteUnconfirmedUsers(ctx context.Context, createdBefore time.Time) (int64, error)
	PutSocialIdentity(ctx context.Context, identity domain.SocialIdentity) error
	GetSocialIdentity(ctx context.Context, provider string, subject string) (domain.SocialIdentity, error)
}

// ProjectStore persists projects. Participants are never stored on the
// project row.
type ProjectStore interface {
	// CreateProject writes the project and its owner participant atomically.
	CreateProject(ctx context.Context, project domain.Project, owner domain.Participant) error
	GetProject(ctx context.Context, projectID string) (domain.Project, error)
	UpdateProject(ctx context.Context, project domain.Project, expectedVersion int64) (domain.Project, error)
	// DeleteProject removes the project and every project-scoped record.
	DeleteProject(ctx context.Context, projectID string) error
	ListProjects(ctx context.Context) ([]domain.Project, error)
	ListProjectsForUser(ctx context.Context, userID string, statuses []domain.ParticipantStatus) ([]domain.Project, error)
}

// ParticipantStore is the single source of project membership.
type ParticipantStore interface {
	// PutParticipant inserts a new row; a second row for the same project
	// and user fails with ErrConflict.
	PutParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, projectID string, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, projectID string) ([]domain.Participant, error)
	// TransitionParticipant moves a row to status to only when its current
	// status is one of from. ErrNotFound covers both a missing row and a
	// status mismatch.
	TransitionParticipant(ctx context.Context, projectID string, userID string, from []domain.ParticipantStatus, to domain.ParticipantStatus, at time.Time) (domain.Participant, error)
	SetShowOnTimeline(ctx context.Context, projectID string, userID string, show bool, at time.Time) (domain.Participant, error)
}

// TimelineStore persists annotations, milestones and tasks. Update methods
// write only when the stored version equals expectedVersion and return the
// row with its bumped version.
type TimelineStore interface {
	PutAnnotation(ctx context.Context, annotation domain.Annotation) error
	GetAnnotation(ctx context.Context, annotationID string) (domain.Annotation, error)
	UpdateAnnotation(ctx context.Context, annotation domain.Annotation, expectedVersion int64) (domain.Annotation, error)
	DeleteAnnotation(ctx context.Context, annotationID string) error
	ListAnnotations(ctx context.Context, projectID string) ([]domain.Annotation, error)

	PutMilestone(ctx context.Context, milestone domain.Milestone) error
	GetMilestone(ctx context.Context, milestoneID string) (domain.Milestone, error)
	UpdateMilestone(ctx context.Context, milestone domain.Milestone, expectedVersion int64) (domain.Milestone, error)
	DeleteMilestone(ctx context.Context, milestoneID string) error
	ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error)

	PutTask(ctx context.Context, task domain.Task) error
	GetTask(ctx context.Context, taskID string) (domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task, expectedVersion int64) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	// AttachToTask adds a reference; a duplicate fails with ErrConflict.
	AttachToTask(ctx context.Context, taskID string, kind domain.AttachmentKind, refID string, at time.Time) (domain.Task, error)
	// DetachFromTask removes a reference; a missing one fails with ErrNotFound.
	DetachFromTask(ctx context.Context, taskID string, kind domain.AttachmentKind, refID string, at time.Time) (domain.Task, error)
}

// ResourceStore persists resources and outcomes.
type ResourceStore interface {
	PutResource(ctx context.Context, resource domain.Resource) error
	GetResource(ctx context.Context, resourceID string) (domain.Resource, error)
	UpdateResource(ctx context.Context, resource domain.Resource, expectedVersion int64) (domain.Resource, error)
	DeleteResource(ctx context.Context, resourceID string) error
	ListResources(ctx context.Context, projectID string) ([]domain.Resource, error)

	// PutOutcome writes the outcome with its versions.
	PutOutcome(ctx context.Context, outcome domain.Outcome) error
	GetOutcome(ctx context.Context, outcomeID string) (domain.Outcome, error)
	// UpdateOutcome writes the outcome row and, when set, one new version.
	UpdateOutcome(ctx context.Context, outcome domain.Outcome, added *domain.OutcomeVersion, expectedVersion int64) (domain.Outcome, error)
	DeleteOutcome(ctx context.Context, outcomeID string) error
	ListOutcomes(ctx context.Context, projectID string) ([]domain.Outcome, error)
}

// FeedStore persists messages and activities.
type FeedStore interface {
	PutMessage(ctx context.Context, message domain.Message) error
	ListMessages(ctx context.Context, projectID string, cursor Cursor) ([]domain.Message, error)
	PutActivity(ctx context.Context, activity domain.Activity) error
	ListActivities(ctx context.Context, projectID string, cursor Cursor) ([]domain.Activity, error)
}

// Store is the full persistence surface of the timeline service.
type Store interface {
	UserStore
	ProjectStore
	ParticipantStore
	TimelineStore
	ResourceStore
	FeedStore
	Close() error
}
