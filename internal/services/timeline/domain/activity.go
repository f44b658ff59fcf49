package domain

import (
	"fmt"
	"time"
)

// ActivityType is the verb of a feed entry.
type ActivityType string

const (
	ActivityCreate ActivityType = "create"
	ActivityUpdate ActivityType = "update"
	ActivityDelete ActivityType = "delete"
	ActivityMove   ActivityType = "move"
	ActivityInvite ActivityType = "invite"
	ActivityAccept ActivityType = "accept"
	ActivityReject ActivityType = "reject"
	ActivityLeave  ActivityType = "leave"
	ActivityRemove ActivityType = "remove"
	ActivityAttach ActivityType = "attach"
	ActivityDetach ActivityType = "detach"
)

// ActivityData is the per-type summary stored with an activity.
type ActivityData struct {
	ID    string         `json:"id,omitempty"`
	Title string         `json:"title,omitempty"`
	Start *time.Time     `json:"start,omitempty"`
	End   *time.Time     `json:"end,omitempty"`
	User  string         `json:"user,omitempty"`
	Kind  AttachmentKind `json:"kind,omitempty"`
	Ref   *Attachment    `json:"ref,omitempty"`
}

// Activity is an immutable feed entry derived from a domain event.
type Activity struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"project"`
	ActorID      string       `json:"actor_id"`
	Actor        *UserSummary `json:"actor,omitempty"`
	ActivityType ActivityType `json:"activity_type"`
	ObjectType   ObjectType   `json:"object_type"`
	Data         ActivityData `json:"data"`
	CreatedAt    time.Time    `json:"created"`
}

func (a Activity) RecordID() string      { return a.ID }
func (a Activity) RecordProject() string { return a.ProjectID }

// NewActivity builds a feed entry.
func NewActivity(projectID, actorID string, activityType ActivityType, objectType ObjectType, data ActivityData, now func() time.Time, idGenerator func() (string, error)) (Activity, error) {
	now, idGenerator = defaults(now, idGenerator)
	activityID, err := idGenerator()
	if err != nil {
		return Activity{}, fmt.Errorf("generate activity id: %w", err)
	}
	return Activity{
		ID:           activityID,
		ProjectID:    projectID,
		ActorID:      actorID,
		ActivityType: activityType,
		ObjectType:   objectType,
		Data:         data,
		CreatedAt:    Stamp(now()),
	}, nil
}
