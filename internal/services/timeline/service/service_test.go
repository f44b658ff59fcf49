package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/blob"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
	"github.com/learning-layers/Timeliner/internal/services/timeline/identity"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage/sqlite"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so creation times stay ordered.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) last(t *testing.T) event.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("expected a published event")
	}
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type harness struct {
	svc    *Service
	store  *sqlite.Store
	blobs  blob.Store
	events *recordingPublisher
	clock  *testClock
	tokens *identity.Tokens
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	identity.PasswordCost = bcrypt.MinCost

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	blobs, err := blob.NewFilesystem(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	clock := &testClock{now: baseTime}
	tokens, err := identity.NewTokens(identity.TokenConfig{
		Secret:   "0123456789abcdef0123",
		Issuer:   "timeliner",
		Audience: "timeliner-api",
		TTL:      time.Hour,
	}, clock.Now)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	var (
		mu   sync.Mutex
		next int
	)
	events := &recordingPublisher{}
	svc, err := New(Options{
		Store:  store,
		Blobs:  blobs,
		Events: events,
		Tokens: tokens,
		Now:    clock.Now,
		IDGenerator: func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			next++
			return fmt.Sprintf("id-%04d", next), nil
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &harness{svc: svc, store: store, blobs: blobs, events: events, clock: clock, tokens: tokens}
}

func (h *harness) user(t *testing.T, userID string) domain.User {
	t.Helper()
	user := domain.User{
		ID:        userID,
		Email:     userID + "@example.com",
		Activated: true,
		Name:      domain.Name{First: userID, Last: "Tester"},
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	if err := h.store.PutUser(context.Background(), user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	return user
}

func (h *harness) project(t *testing.T, ownerID string) domain.Project {
	t.Helper()
	start := baseTime
	project, err := h.svc.CreateProject(context.Background(), ownerID, domain.CreateProjectInput{Title: "Launch", Start: &start})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

// member invites userID into the project and accepts.
func (h *harness) member(t *testing.T, projectID, ownerID, userID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.Invite(ctx, projectID, userID, ownerID); err != nil {
		t.Fatalf("invite %s: %v", userID, err)
	}
	if _, err := h.svc.Accept(ctx, projectID, userID); err != nil {
		t.Fatalf("accept %s: %v", userID, err)
	}
}

func expectCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperrors.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func at(day int) *time.Time {
	value := baseTime.AddDate(0, 0, day)
	return &value
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestCreateProjectPopulatesOwner(t *testing.T) {
	h := newHarness(t)
	h.user(t, "owner")
	project := h.project(t, "owner")

	if project.Version != 1 {
		t.Fatalf("expected version 1, got %d", project.Version)
	}
	if len(project.Participants) != 1 || project.Participants[0].Status != domain.ParticipantActive {
		t.Fatalf("expected active owner participant, got %+v", project.Participants)
	}
	if project.Owner == nil || project.Owner.ID != "owner" {
		t.Fatalf("expected populated owner, got %+v", project.Owner)
	}
	if project.Participants[0].User == nil {
		t.Fatal("expected participant user to be populated")
	}
	evt := h.events.last(t)
	if evt.Name() != "create:project" || evt.Room() != project.ID {
		t.Fatalf("expected create:project in room %s, got %s in %s", project.ID, evt.Name(), evt.Room())
	}

	mine, err := h.svc.ListMyProjects(context.Background(), "owner")
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != project.ID {
		t.Fatalf("expected own project, got %+v", mine)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	h := newHarness(t)
	h.user(t, "owner")
	_, err := h.svc.CreateProject(context.Background(), "owner", domain.CreateProjectInput{Title: " "})
	expectCode(t, err, apperrors.CodeRequiredParameterMissing)
	if h.events.count() != 0 {
		t.Fatal("expected no events after failed create")
	}
}

func TestParticipationLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "bob")
	h.user(t, "carol")
	project := h.project(t, "owner")

	invited, err := h.svc.Invite(ctx, project.ID, "bob", "owner")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if invited.Status != domain.ParticipantPending || invited.User == nil {
		t.Fatalf("expected pending populated participant, got %+v", invited)
	}
	if name := h.events.last(t).Name(); name != "invite:participant" {
		t.Fatalf("expected invite:participant, got %s", name)
	}

	_, err = h.svc.Invite(ctx, project.ID, "bob", "owner")
	expectCode(t, err, apperrors.CodeAlreadyParticipant)
	_, err = h.svc.Invite(ctx, project.ID, "nobody", "owner")
	expectCode(t, err, apperrors.CodeUserNotFound)

	// Pending participants may read but not write.
	if _, err := h.svc.GetProject(ctx, project.ID, "bob"); err != nil {
		t.Fatalf("pending read: %v", err)
	}
	_, err = h.svc.CreateAnnotation(ctx, project.ID, "bob", domain.EntryInput{Title: "Kickoff", Start: at(1)})
	expectCode(t, err, apperrors.CodeNotProjectParticipant)
	_, err = h.svc.Invite(ctx, project.ID, "carol", "bob")
	expectCode(t, err, apperrors.CodeNotProjectParticipant)

	if _, err := h.svc.Accept(ctx, project.ID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err = h.svc.Accept(ctx, project.ID, "bob")
	expectCode(t, err, apperrors.CodeNotProjectParticipant)

	_, err = h.svc.Leave(ctx, project.ID, "owner")
	expectCode(t, err, apperrors.CodeOwnerCannotLeave)
	_, err = h.svc.Remove(ctx, project.ID, "owner", "owner")
	expectCode(t, err, apperrors.CodeOwnerCannotBeRemoved)
	_, err = h.svc.Remove(ctx, project.ID, "bob", "bob")
	expectCode(t, err, apperrors.CodeNotProjectOwner)

	left, err := h.svc.Leave(ctx, project.ID, "bob")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if left.Status != domain.ParticipantPlaceholder {
		t.Fatalf("expected placeholder, got %s", left.Status)
	}
	_, err = h.svc.GetProject(ctx, project.ID, "bob")
	expectCode(t, err, apperrors.CodeNotProjectParticipant)

	// A placeholder row blocks a second invite.
	_, err = h.svc.Invite(ctx, project.ID, "bob", "owner")
	expectCode(t, err, apperrors.CodeAlreadyParticipant)

	if _, err := h.svc.Invite(ctx, project.ID, "carol", "owner"); err != nil {
		t.Fatalf("invite carol: %v", err)
	}
	if _, err := h.svc.Reject(ctx, project.ID, "carol"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err = h.svc.Remove(ctx, project.ID, "carol", "owner")
	expectCode(t, err, apperrors.CodeNotProjectParticipant)
}

// failingUsers loses user summaries while every other read and write
// reaches the real store.
type failingUsers struct {
	storage.Store
}

func (failingUsers) GetUsers(context.Context, []string) (map[string]domain.User, error) {
	return nil, errors.New("users unavailable")
}

func TestTransitionPublishesWhenSummaryLookupFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "bob")
	project := h.project(t, "owner")

	events := &recordingPublisher{}
	svc, err := New(Options{
		Store:  failingUsers{Store: h.store},
		Blobs:  h.blobs,
		Events: events,
		Tokens: h.tokens,
		Now:    h.clock.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	invited, err := svc.Invite(ctx, project.ID, "bob", "owner")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if invited.Status != domain.ParticipantPending || invited.User != nil {
		t.Fatalf("expected pending participant without summary, got %+v", invited)
	}
	if name := events.last(t).Name(); name != "invite:participant" {
		t.Fatalf("expected invite:participant, got %s", name)
	}

	accepted, err := svc.Accept(ctx, project.ID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.ParticipantActive {
		t.Fatalf("expected active participant, got %+v", accepted)
	}
	if name := events.last(t).Name(); name != "accept:participant" {
		t.Fatalf("expected accept:participant, got %s", name)
	}
	if events.count() != 2 {
		t.Fatalf("expected 2 events, got %d", events.count())
	}
	stored, err := h.store.GetParticipant(ctx, project.ID, "bob")
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if stored.Status != domain.ParticipantActive {
		t.Fatalf("expected stored active participant, got %+v", stored)
	}
}

func TestRemovePendingParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "bob")
	project := h.project(t, "owner")
	if _, err := h.svc.Invite(ctx, project.ID, "bob", "owner"); err != nil {
		t.Fatalf("invite: %v", err)
	}
	removed, err := h.svc.Remove(ctx, project.ID, "bob", "owner")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != domain.ParticipantPlaceholder {
		t.Fatalf("expected placeholder, got %s", removed.Status)
	}
	if evt := h.events.last(t); evt.Name() != "remove:participant" || evt.ActorID != "owner" {
		t.Fatalf("expected remove:participant by owner, got %s by %s", evt.Name(), evt.ActorID)
	}
}

func TestUpdateProjectStatusOwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "bob")
	project := h.project(t, "owner")
	h.member(t, project.ID, "owner", "bob")

	finished := domain.ProjectStatusFinished
	_, err := h.svc.UpdateProject(ctx, project.ID, "bob", domain.UpdateProjectInput{Title: "Launch", Status: &finished})
	expectCode(t, err, apperrors.CodeStatusChangeByNotOwner)

	stale := int64(7)
	_, err = h.svc.UpdateProject(ctx, project.ID, "owner", domain.UpdateProjectInput{Title: "Launch", Version: &stale})
	expectCode(t, err, apperrors.CodeVersionConflict)

	updated, err := h.svc.UpdateProject(ctx, project.ID, "owner", domain.UpdateProjectInput{Title: "Launch v2", Status: &finished})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.ProjectStatusFinished || updated.Version != 2 {
		t.Fatalf("expected finished at version 2, got %s at %d", updated.Status, updated.Version)
	}
	if len(updated.Participants) != 2 {
		t.Fatalf("expected two participants, got %d", len(updated.Participants))
	}
}

func TestEntityVersionAndProjectChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	first := h.project(t, "owner")
	second := h.project(t, "owner")

	milestone, err := h.svc.CreateMilestone(ctx, first.ID, "owner", domain.EntryInput{Title: "Beta", Start: at(3), Color: intPtr(2)})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}
	if milestone.Creator == nil || milestone.Creator.ID != "owner" {
		t.Fatalf("expected populated creator, got %+v", milestone.Creator)
	}

	_, err = h.svc.UpdateMilestone(ctx, second.ID, milestone.ID, "owner", domain.EntryInput{Title: "Moved"})
	expectCode(t, err, apperrors.CodePermissionError)

	version := milestone.Version
	updated, err := h.svc.UpdateMilestone(ctx, first.ID, milestone.ID, "owner", domain.EntryInput{Title: "Beta 2", Version: &version})
	if err != nil {
		t.Fatalf("update milestone: %v", err)
	}
	if updated.Version != version+1 {
		t.Fatalf("expected version %d, got %d", version+1, updated.Version)
	}
	_, err = h.svc.UpdateMilestone(ctx, first.ID, milestone.ID, "owner", domain.EntryInput{Title: "Beta 3", Version: &version})
	expectCode(t, err, apperrors.CodeVersionConflict)

	_, err = h.svc.CreateMilestone(ctx, first.ID, "owner", domain.EntryInput{Title: "Bad", Start: at(1), Color: intPtr(9)})
	expectCode(t, err, apperrors.CodeInvalidColor)

	if err := h.svc.DeleteMilestone(ctx, first.ID, milestone.ID, "owner"); err != nil {
		t.Fatalf("delete milestone: %v", err)
	}
	if name := h.events.last(t).Name(); name != "delete:milestone" {
		t.Fatalf("expected delete:milestone, got %s", name)
	}
	err = h.svc.DeleteMilestone(ctx, first.ID, milestone.ID, "owner")
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestTaskDatesAndMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "outsider")
	project := h.project(t, "owner")

	_, err := h.svc.CreateTask(ctx, project.ID, "owner", domain.EntryInput{Title: "Half", Start: at(1)})
	expectCode(t, err, apperrors.CodeEitherBothDatesOrNone)
	_, err = h.svc.CreateTask(ctx, project.ID, "owner", domain.EntryInput{Title: "Backwards", Start: at(4), End: at(2)})
	expectCode(t, err, apperrors.CodeEndDateBeforeStart)

	task, err := h.svc.CreateTask(ctx, project.ID, "owner", domain.EntryInput{Title: "Build", Start: at(1), End: at(4)})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	_, err = h.svc.Move(ctx, domain.ObjectTask, task.ID, "outsider", domain.MoveInput{Start: at(2), End: at(5)})
	expectCode(t, err, apperrors.CodeNotProjectParticipant)

	moved, err := h.svc.Move(ctx, domain.ObjectTask, task.ID, "owner", domain.MoveInput{Start: at(2), End: at(5)})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Version != task.Version+1 || !moved.Start.Equal(*at(2)) || moved.ProjectID != project.ID {
		t.Fatalf("unexpected move record %+v", moved)
	}
	evt := h.events.last(t)
	if evt.Name() != "move:task" {
		t.Fatalf("expected move:task, got %s", evt.Name())
	}
	if _, ok := evt.Data.(domain.MoveRecord); !ok {
		t.Fatalf("expected move record payload, got %T", evt.Data)
	}

	stale := task.Version
	_, err = h.svc.Move(ctx, domain.ObjectTask, task.ID, "owner", domain.MoveInput{Start: at(3), End: at(6), Version: &stale})
	expectCode(t, err, apperrors.CodeVersionConflict)

	annotation, err := h.svc.CreateAnnotation(ctx, project.ID, "owner", domain.EntryInput{Title: "Note", Start: at(1)})
	if err != nil {
		t.Fatalf("create annotation: %v", err)
	}
	_, err = h.svc.Move(ctx, domain.ObjectAnnotation, annotation.ID, "owner", domain.MoveInput{})
	expectCode(t, err, apperrors.CodeRequiredParameterMissing)
	_, err = h.svc.Move(ctx, domain.ObjectAnnotation, "missing", "owner", domain.MoveInput{Start: at(2)})
	expectCode(t, err, apperrors.CodeNotFound)

	cleared, err := h.svc.UpdateTask(ctx, project.ID, task.ID, "owner", domain.EntryInput{Title: "Build"})
	if err != nil {
		t.Fatalf("clear dates: %v", err)
	}
	if cleared.Start != nil || cleared.End != nil {
		t.Fatalf("expected dates cleared, got %v %v", cleared.Start, cleared.End)
	}
}

func TestResponsesMatchStoredTimestamps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	project := h.project(t, "owner")
	h.clock.Advance(987654 * time.Nanosecond)

	start := time.Date(2026, 3, 4, 10, 0, 0, 123456789, time.UTC)
	end := start.Add(48*time.Hour + 321*time.Nanosecond)
	task, err := h.svc.CreateTask(ctx, project.ID, "owner", domain.EntryInput{Title: "Precise", Start: &start, End: &end})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	stored, err := h.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !task.Start.Equal(*stored.Start) || !task.End.Equal(*stored.End) || !task.CreatedAt.Equal(stored.CreatedAt) {
		t.Fatalf("created %v..%v at %v, stored %v..%v at %v", task.Start, task.End, task.CreatedAt, stored.Start, stored.End, stored.CreatedAt)
	}
	published, ok := h.events.last(t).Data.(domain.Task)
	if !ok || !published.Start.Equal(*stored.Start) {
		t.Fatalf("published payload %+v does not match stored task", h.events.last(t).Data)
	}

	moveTo := start.Add(time.Hour + 999*time.Microsecond + 1)
	moveEnd := moveTo.Add(time.Hour)
	moved, err := h.svc.Move(ctx, domain.ObjectTask, task.ID, "owner", domain.MoveInput{Start: &moveTo, End: &moveEnd})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	stored, err = h.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !moved.Start.Equal(*stored.Start) || !moved.End.Equal(*stored.End) {
		t.Fatalf("moved to %v..%v, stored %v..%v", moved.Start, moved.End, stored.Start, stored.End)
	}
}

func TestConcurrentMovesNeverLoseUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	project := h.project(t, "owner")
	milestone, err := h.svc.CreateMilestone(ctx, project.ID, "owner", domain.EntryInput{Title: "Beta", Start: at(3), Color: intPtr(2)})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}

	const movers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < movers; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			_, err := h.svc.Move(ctx, domain.ObjectMilestone, milestone.ID, "owner", domain.MoveInput{Start: at(day)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.CodeOf(err) == apperrors.CodeVersionConflict:
				conflicts++
			default:
				t.Errorf("move %d: %v", day, err)
			}
		}(i + 1)
	}
	wg.Wait()

	if succeeded+conflicts != movers || succeeded == 0 {
		t.Fatalf("succeeded=%d conflicts=%d, want %d outcomes with at least one success", succeeded, conflicts, movers)
	}
	loaded, err := h.store.GetMilestone(ctx, milestone.ID)
	if err != nil {
		t.Fatalf("get milestone: %v", err)
	}
	if loaded.Version != int64(succeeded)+1 {
		t.Fatalf("version = %d, want %d", loaded.Version, succeeded+1)
	}
}

func TestAttachAndDetach(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "bob")
	h.user(t, "pending")
	project := h.project(t, "owner")
	other := h.project(t, "owner")
	h.member(t, project.ID, "owner", "bob")
	if _, err := h.svc.Invite(ctx, project.ID, "pending", "owner"); err != nil {
		t.Fatalf("invite pending: %v", err)
	}

	task, err := h.svc.CreateTask(ctx, project.ID, "owner", domain.EntryInput{Title: "Ship"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	resource, err := h.svc.CreateResource(ctx, project.ID, "owner", domain.ResourceInput{Title: "Docs", URL: "https://example.com"}, nil)
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	foreign, err := h.svc.CreateResource(ctx, other.ID, "owner", domain.ResourceInput{Title: "Elsewhere", URL: "https://example.org"}, nil)
	if err != nil {
		t.Fatalf("create foreign resource: %v", err)
	}

	attached, err := h.svc.Attach(ctx, project.ID, task.ID, domain.AttachResource, resource.ID, "bob")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(attached.ResourceIDs) != 1 || attached.Version != task.Version+1 {
		t.Fatalf("expected one resource at bumped version, got %+v", attached)
	}
	evt := h.events.last(t)
	if evt.Name() != "update:task" || evt.Attachment == nil || evt.Attachment.RefTitle != "Docs" || evt.Attachment.Detached {
		t.Fatalf("expected attachment update event, got %+v", evt)
	}

	published := h.events.count()
	_, err = h.svc.Attach(ctx, project.ID, task.ID, domain.AttachResource, resource.ID, "bob")
	expectCode(t, err, apperrors.CodeAlreadyAttached)
	if h.events.count() != published {
		t.Fatal("a rejected attach must not publish")
	}
	if stored, err := h.store.GetTask(ctx, task.ID); err != nil || stored.Version != attached.Version {
		t.Fatalf("a rejected attach must not write, got version %d (%v)", stored.Version, err)
	}
	_, err = h.svc.Attach(ctx, project.ID, task.ID, domain.AttachResource, foreign.ID, "bob")
	expectCode(t, err, apperrors.CodeNotFound)
	_, err = h.svc.Attach(ctx, project.ID, task.ID, domain.AttachParticipant, "pending", "bob")
	expectCode(t, err, apperrors.CodeNotFound)
	if _, err := h.svc.Attach(ctx, project.ID, task.ID, domain.AttachParticipant, "bob", "bob"); err != nil {
		t.Fatalf("attach participant: %v", err)
	}

	detached, err := h.svc.Detach(ctx, project.ID, task.ID, domain.AttachResource, resource.ID, "bob")
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if len(detached.ResourceIDs) != 0 {
		t.Fatalf("expected no resources, got %v", detached.ResourceIDs)
	}
	if evt := h.events.last(t); evt.Attachment == nil || !evt.Attachment.Detached {
		t.Fatalf("expected detach attachment, got %+v", evt.Attachment)
	}
	_, err = h.svc.Detach(ctx, project.ID, task.ID, domain.AttachResource, resource.ID, "bob")
	expectCode(t, err, apperrors.CodeNotAttached)
	_, err = h.svc.Detach(ctx, project.ID, task.ID, domain.AttachOutcome, resource.ID, "bob")
	expectCode(t, err, apperrors.CodeNotAttached)
}

func TestResourceFilesAndDeletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "outsider")
	project := h.project(t, "owner")

	file := &domain.FileInfo{Name: "plan.txt", Type: "text/plain", Size: 4}
	_, err := h.svc.CreateResource(ctx, project.ID, "owner", domain.ResourceInput{Title: "Both", URL: "https://x", File: file}, nil)
	expectCode(t, err, apperrors.CodeEitherURLOrFileNotBoth)
	_, err = h.svc.CreateResource(ctx, project.ID, "owner", domain.ResourceInput{Title: "None"}, nil)
	expectCode(t, err, apperrors.CodeNoURLOrFileProvided)

	resource, err := h.svc.CreateResource(ctx, project.ID, "owner", domain.ResourceInput{Title: "Plan", File: file}, bytes.NewBufferString("plan"))
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	download, err := h.svc.OpenResourceFile(ctx, resource.ID, "owner")
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	content, _ := io.ReadAll(download.Content)
	_ = download.Content.Close()
	if string(content) != "plan" || download.File.Name != "plan.txt" {
		t.Fatalf("unexpected download %q %+v", content, download.File)
	}
	_, err = h.svc.OpenResourceFile(ctx, resource.ID, "outsider")
	expectCode(t, err, apperrors.CodeNotProjectParticipant)

	task, err := h.svc.CreateTask(ctx, project.ID, "owner", domain.EntryInput{Title: "Read"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := h.svc.Attach(ctx, project.ID, task.ID, domain.AttachResource, resource.ID, "owner"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	switched, err := h.svc.UpdateResource(ctx, project.ID, resource.ID, "owner", domain.ResourceInput{Title: "Plan", URL: "https://example.com/plan"}, nil)
	if err != nil {
		t.Fatalf("switch to url: %v", err)
	}
	if switched.File != nil {
		t.Fatal("expected file cleared")
	}
	if _, err := h.blobs.Open(ctx, domain.ResourceBlobKey(project.ID, resource.ID)); err != blob.ErrNotFound {
		t.Fatalf("expected blob removed, got %v", err)
	}

	if err := h.svc.DeleteResource(ctx, project.ID, resource.ID, "owner"); err != nil {
		t.Fatalf("delete resource: %v", err)
	}
	tasks, err := h.svc.ListTasks(ctx, project.ID, "owner")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || len(tasks[0].ResourceIDs) != 0 {
		t.Fatalf("expected resource detached from task, got %+v", tasks)
	}
}

func TestOutcomeVersions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	project := h.project(t, "owner")

	_, err := h.svc.CreateOutcome(ctx, project.ID, "owner", domain.OutcomeInput{Title: "Report"}, nil)
	expectCode(t, err, apperrors.CodeRequiredParameterMissing)

	outcome, err := h.svc.CreateOutcome(ctx, project.ID, "owner", domain.OutcomeInput{
		Title: "Report",
		File:  &domain.FileInfo{Name: "r1.pdf", Type: "application/pdf", Size: 2},
	}, bytes.NewBufferString("v1"))
	if err != nil {
		t.Fatalf("create outcome: %v", err)
	}
	updated, err := h.svc.UpdateOutcome(ctx, project.ID, outcome.ID, "owner", domain.OutcomeInput{
		Title: "Report",
		File:  &domain.FileInfo{Name: "r2.pdf", Type: "application/pdf", Size: 2},
	}, bytes.NewBufferString("v2"))
	if err != nil {
		t.Fatalf("update outcome: %v", err)
	}
	if len(updated.Versions) != 2 || updated.Versions[1].Creator == nil {
		t.Fatalf("expected two populated versions, got %+v", updated.Versions)
	}

	first := updated.Versions[0]
	download, err := h.svc.OpenOutcomeFile(ctx, outcome.ID, first.ID, "owner")
	if err != nil {
		t.Fatalf("open version: %v", err)
	}
	content, _ := io.ReadAll(download.Content)
	_ = download.Content.Close()
	if string(content) != "v1" {
		t.Fatalf("expected first version bytes, got %q", content)
	}
	_, err = h.svc.OpenOutcomeFile(ctx, outcome.ID, "missing", "owner")
	expectCode(t, err, apperrors.CodeNotFound)

	if err := h.svc.DeleteOutcome(ctx, project.ID, outcome.ID, "owner"); err != nil {
		t.Fatalf("delete outcome: %v", err)
	}
	for _, version := range updated.Versions {
		if _, err := h.blobs.Open(ctx, domain.OutcomeVersionBlobKey(project.ID, outcome.ID, version.ID)); err != blob.ErrNotFound {
			t.Fatalf("expected version blob removed, got %v", err)
		}
	}
}

func TestMessagesPaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	project := h.project(t, "owner")

	for i := 0; i < 3; i++ {
		if _, err := h.svc.CreateMessage(ctx, project.ID, "owner", fmt.Sprintf("hello %d", i)); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	_, err := h.svc.CreateMessage(ctx, project.ID, "owner", "   ")
	expectCode(t, err, apperrors.CodeRequiredParameterMissing)

	page, err := h.svc.ListMessages(ctx, project.ID, "owner", storage.Cursor{Limit: 2})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(page) != 2 || page[0].Text != "hello 2" || page[0].Creator == nil {
		t.Fatalf("expected newest first page, got %+v", page)
	}
	before := page[1].CreatedAt
	rest, err := h.svc.ListMessages(ctx, project.ID, "owner", storage.Cursor{Before: &before})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest) != 1 || rest[0].Text != "hello 0" {
		t.Fatalf("expected oldest message, got %+v", rest)
	}

	_, err = h.svc.ListMessages(ctx, project.ID, "owner", storage.Cursor{Limit: 51})
	expectCode(t, err, apperrors.CodeMaxItemLimitExceeded)
}

func TestDeleteProjectOwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	h.user(t, "bob")
	project := h.project(t, "owner")
	h.member(t, project.ID, "owner", "bob")

	resource, err := h.svc.CreateResource(ctx, project.ID, "owner", domain.ResourceInput{
		Title: "Plan",
		File:  &domain.FileInfo{Name: "plan.txt", Size: 1},
	}, bytes.NewBufferString("x"))
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}

	expectCode(t, h.svc.DeleteProject(ctx, project.ID, "bob"), apperrors.CodeNotProjectOwner)
	if err := h.svc.DeleteProject(ctx, project.ID, "owner"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	_, err = h.svc.GetProject(ctx, project.ID, "owner")
	expectCode(t, err, apperrors.CodeNotProjectParticipant)
	if _, err := h.blobs.Open(ctx, domain.ResourceBlobKey(project.ID, resource.ID)); err != blob.ErrNotFound {
		t.Fatalf("expected blob removed, got %v", err)
	}
}

func TestTimelineVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner")
	project := h.project(t, "owner")
	hidden, err := h.svc.SetTimelineVisibility(ctx, project.ID, "owner", false)
	if err != nil {
		t.Fatalf("hide: %v", err)
	}
	if hidden.ShowOnTimeline {
		t.Fatal("expected project hidden from timeline")
	}
}

func TestAdminOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "root")
	h.user(t, "bob")

	_, err := h.svc.ListAllProjects(ctx, "root")
	expectCode(t, err, apperrors.CodeUserNotAdmin)

	if _, err := h.svc.GrantAdminByEmail(ctx, "ROOT@example.com"); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	_, err = h.svc.GrantAdminByEmail(ctx, "root@example.com")
	expectCode(t, err, apperrors.CodeAlreadyAdmin)

	_, err = h.svc.SetAdmin(ctx, "root", "root", false)
	expectCode(t, err, apperrors.CodeCannotRemoveOwnAdmin)
	_, err = h.svc.SetAdmin(ctx, "root", "bob", false)
	expectCode(t, err, apperrors.CodeNotAdmin)
	promoted, err := h.svc.SetAdmin(ctx, "root", "bob", true)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !promoted.Admin {
		t.Fatal("expected bob to be admin")
	}

	users, err := h.svc.ListUsers(ctx, "root")
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected two users, got %d", len(users))
	}
	found, err := h.svc.SearchUsers(ctx, "BOB", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].ID != "bob" {
		t.Fatalf("expected bob, got %+v", found)
	}
}

func TestRegistrationFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.svc.Register(ctx, "New.User@Example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Activated || user.ConfirmationKey == "" {
		t.Fatalf("expected inactive registration with key, got %+v", user)
	}
	_, err = h.svc.Register(ctx, "new.user@example.com")
	expectCode(t, err, apperrors.CodeEmailAlreadyRegistered)

	_, err = h.svc.Login(ctx, "new.user@example.com", "whatever1")
	expectCode(t, err, apperrors.CodeUserNotActivated)

	_, err = h.svc.Confirm(ctx, user.ConfirmationKey, "short", domain.Name{First: "New"})
	expectCode(t, err, apperrors.CodePasswordTooShort)
	session, err := h.svc.Confirm(ctx, user.ConfirmationKey, "long-enough", domain.Name{First: "New", Last: "User"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !session.User.Activated || session.Token == "" {
		t.Fatalf("expected activated session, got %+v", session)
	}
	_, err = h.svc.GetRegistration(ctx, user.ConfirmationKey)
	expectCode(t, err, apperrors.CodeConfirmationKeyMissing)

	_, err = h.svc.Login(ctx, "new.user@example.com", "wrong-password")
	expectCode(t, err, apperrors.CodeAuthenticationFailed)
	login, err := h.svc.Login(ctx, "NEW.USER@example.com", "long-enough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	authed, err := h.svc.Authenticate(ctx, login.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID || authed.LastLogin == nil {
		t.Fatalf("expected logged in user, got %+v", authed)
	}
	_, err = h.svc.Authenticate(ctx, "")
	expectCode(t, err, apperrors.CodeAuthorizationHeaderMissing)
}

func TestPurgeUnconfirmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale, err := h.svc.Register(ctx, "stale@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	h.clock.Advance(DefaultConfirmationTTL + time.Hour)
	if _, err := h.svc.Register(ctx, "fresh@example.com"); err != nil {
		t.Fatalf("register fresh: %v", err)
	}
	_, err = h.svc.GetRegistration(ctx, stale.ConfirmationKey)
	expectCode(t, err, apperrors.CodeConfirmationKeyMissing)

	removed, err := h.svc.PurgeUnconfirmed(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one purged registration, got %d", removed)
	}
}

func TestSocialLoginLinksIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "existing")

	profile := SocialProfile{Provider: "google", Subject: "g-1", Email: "existing@example.com"}
	first, err := h.svc.SocialLogin(ctx, profile)
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	if first.User.ID != "existing" {
		t.Fatalf("expected existing account, got %s", first.User.ID)
	}
	again, err := h.svc.SocialLogin(ctx, SocialProfile{Provider: "google", Subject: "g-1", Email: "changed@example.com"})
	if err != nil {
		t.Fatalf("second social login: %v", err)
	}
	if again.User.ID != "existing" {
		t.Fatalf("expected linked account, got %s", again.User.ID)
	}

	created, err := h.svc.SocialLogin(ctx, SocialProfile{Provider: "google", Subject: "g-2", Email: "fresh@example.com", Name: domain.Name{First: "Fresh"}})
	if err != nil {
		t.Fatalf("social signup: %v", err)
	}
	if !created.User.Activated || created.User.Email != "fresh@example.com" {
		t.Fatalf("expected activated social user, got %+v", created.User)
	}
}

func intPtr(value int) *int {
	return &value
}
