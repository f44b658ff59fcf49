package domain

import "time"

// ObjectType names the kind of entity a domain event or activity refers to.
type ObjectType string

const (
	ObjectProject     ObjectType = "project"
	ObjectParticipant ObjectType = "participant"
	ObjectAnnotation  ObjectType = "annotation"
	ObjectMilestone   ObjectType = "milestone"
	ObjectTask        ObjectType = "task"
	ObjectResource    ObjectType = "resource"
	ObjectOutcome     ObjectType = "outcome"
	ObjectMessage     ObjectType = "message"
	ObjectActivity    ObjectType = "activity"
)

// Record is implemented by every entity carried on the event bus.
type Record interface {
	// RecordID returns the entity identifier.
	RecordID() string
	// RecordProject returns the owning project identifier. Projects return their own id.
	RecordProject() string
}

// Titled is implemented by records that carry a human-readable title.
type Titled interface {
	RecordTitle() string
}

// Dated is implemented by records placed on the timeline.
type Dated interface {
	RecordDates() (start *time.Time, end *time.Time)
}

// UserSummary is the populated form of a user reference.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  Name   `json:"name"`
}

// FileInfo describes an uploaded file. The bytes live in the blob store.
type FileInfo struct {
	Size int64  `json:"size"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Stamp normalises a time to UTC at millisecond precision, the resolution
// timestamps are stored at.
func Stamp(value time.Time) time.Time {
	return value.UTC().Truncate(time.Millisecond)
}

func timePtr(value time.Time) *time.Time {
	return &value
}
