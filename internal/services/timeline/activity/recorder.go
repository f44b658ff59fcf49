// Package activity turns domain events into the per-project feed.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/learning-layers/Timeliner/internal/platform/id"
	"github.com/learning-layers/Timeliner/internal/platform/logging"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
)

// Store persists activities and resolves actors.
type Store interface {
	PutActivity(ctx context.Context, activity domain.Activity) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// Bus is the event bus the recorder listens on and publishes to.
type Bus interface {
	Subscribe(name string, listener event.Listener)
	Publish(ctx context.Context, evt event.Event)
}

// Subscriptions lists every event name that produces an activity.
var Subscriptions = buildSubscriptions()

func buildSubscriptions() []string {
	var names []string
	add := func(objectType domain.ObjectType, actions ...event.Action) {
		for _, action := range actions {
			names = append(names, event.NameOf(action, objectType))
		}
	}
	for _, objectType := range []domain.ObjectType{domain.ObjectAnnotation, domain.ObjectMilestone, domain.ObjectTask} {
		add(objectType, event.ActionCreate, event.ActionUpdate, event.ActionDelete, event.ActionMove)
	}
	for _, objectType := range []domain.ObjectType{domain.ObjectResource, domain.ObjectOutcome} {
		add(objectType, event.ActionCreate, event.ActionUpdate, event.ActionDelete)
	}
	add(domain.ObjectProject, event.ActionCreate, event.ActionUpdate)
	add(domain.ObjectParticipant, event.ActionInvite, event.ActionAccept, event.ActionReject, event.ActionLeave, event.ActionRemove)
	return names
}

// Recorder writes one activity per subscribed event and announces it.
type Recorder struct {
	store  Store
	bus    Bus
	logger logrus.FieldLogger
	now    func() time.Time
	newID  func() (string, error)
}

// NewRecorder builds a recorder. Call Register to start listening.
func NewRecorder(store Store, bus Bus, logger logrus.FieldLogger, now func() time.Time, idGenerator func() (string, error)) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return &Recorder{
		store:  store,
		bus:    bus,
		logger: logging.Component(logger, "activity"),
		now:    now,
		newID:  idGenerator,
	}
}

// Register subscribes the recorder to every activity-producing event.
func (r *Recorder) Register() {
	for _, name := range Subscriptions {
		r.bus.Subscribe(name, r.Handle)
	}
}

// Handle records evt. Failures are logged and never returned.
func (r *Recorder) Handle(ctx context.Context, evt event.Event) error {
	activity, err := r.record(ctx, evt)
	if err != nil {
		r.logger.WithError(err).
			WithField("event", evt.Name()).
			WithField("project_id", evt.Room()).
			Error("record activity")
		return nil
	}
	r.bus.Publish(ctx, event.Event{
		Action:     event.ActionCreate,
		ObjectType: domain.ObjectActivity,
		Data:       activity,
		ActorID:    evt.ActorID,
	})
	return nil
}

func (r *Recorder) record(ctx context.Context, evt event.Event) (domain.Activity, error) {
	if r.store == nil {
		return domain.Activity{}, fmt.Errorf("activity store is not configured")
	}
	if evt.Data == nil {
		return domain.Activity{}, fmt.Errorf("event has no data")
	}
	projectID := evt.Room()
	if projectID == "" {
		return domain.Activity{}, fmt.Errorf("event has no project")
	}
	activityType, data := Describe(evt)
	activity, err := domain.NewActivity(projectID, evt.ActorID, activityType, evt.ObjectType, data, r.now, r.newID)
	if err != nil {
		return domain.Activity{}, err
	}
	if err := r.store.PutActivity(ctx, activity); err != nil {
		return domain.Activity{}, fmt.Errorf("put activity: %w", err)
	}
	if actor, err := r.store.GetUser(ctx, evt.ActorID); err == nil {
		summary := actor.Summary()
		activity.Actor = &summary
	}
	return activity, nil
}

// Describe derives the activity type and payload of evt.
func Describe(evt event.Event) (domain.ActivityType, domain.ActivityData) {
	data := domain.ActivityData{ID: evt.Data.RecordID()}
	if titled, ok := evt.Data.(domain.Titled); ok {
		data.Title = titled.RecordTitle()
	}
	if participant, ok := evt.Data.(domain.Participant); ok {
		data.User = participant.UserID
	}
	if evt.Action == event.ActionMove {
		if dated, ok := evt.Data.(domain.Dated); ok {
			data.Start, data.End = dated.RecordDates()
		}
	}
	if attachment := evt.Attachment; attachment != nil {
		ref := *attachment
		data.Kind = ref.Kind
		data.Ref = &ref
		if ref.Detached {
			return domain.ActivityDetach, data
		}
		return domain.ActivityAttach, data
	}
	return domain.ActivityType(evt.Action), data
}
