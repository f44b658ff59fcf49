package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/learning-layers/Timeliner/internal/platform/id"
)

const (
	// MinMilestoneColor is the first palette slot.
	MinMilestoneColor = 1
	// MaxMilestoneColor is the last palette slot.
	MaxMilestoneColor = 6
)

// Annotation marks a single point on the project timeline.
type Annotation struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project"`
	CreatorID   string       `json:"creator_id"`
	Creator     *UserSummary `json:"creator,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Start       time.Time    `json:"start"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created"`
	UpdatedAt   time.Time    `json:"updated"`
}

func (a Annotation) RecordID() string      { return a.ID }
func (a Annotation) RecordProject() string { return a.ProjectID }
func (a Annotation) RecordTitle() string   { return a.Title }
func (a Annotation) RecordDates() (*time.Time, *time.Time) {
	return timePtr(a.Start), nil
}

// Milestone is a colored point on the project timeline.
type Milestone struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project"`
	CreatorID   string       `json:"creator_id"`
	Creator     *UserSummary `json:"creator,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Start       time.Time    `json:"start"`
	Color       int          `json:"color"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created"`
	UpdatedAt   time.Time    `json:"updated"`
}

func (m Milestone) RecordID() string      { return m.ID }
func (m Milestone) RecordProject() string { return m.ProjectID }
func (m Milestone) RecordTitle() string   { return m.Title }
func (m Milestone) RecordDates() (*time.Time, *time.Time) {
	return timePtr(m.Start), nil
}

// Task is a unit of work, optionally placed on the timeline as a range.
type Task struct {
	ID             string       `json:"id"`
	ProjectID      string       `json:"project"`
	CreatorID      string       `json:"creator_id"`
	Creator        *UserSummary `json:"creator,omitempty"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Start          *time.Time   `json:"start,omitempty"`
	End            *time.Time   `json:"end,omitempty"`
	ParticipantIDs []string     `json:"participants"`
	ResourceIDs    []string     `json:"resources"`
	OutcomeIDs     []string     `json:"outcomes"`
	Version        int64        `json:"version"`
	CreatedAt      time.Time    `json:"created"`
	UpdatedAt      time.Time    `json:"updated"`
}

func (t Task) RecordID() string      { return t.ID }
func (t Task) RecordProject() string { return t.ProjectID }
func (t Task) RecordTitle() string   { return t.Title }
func (t Task) RecordDates() (*time.Time, *time.Time) {
	return t.Start, t.End
}

// EntryInput carries create and update fields shared by annotations,
// milestones and tasks. Unset pointers leave the current value in place.
type EntryInput struct {
	Title       string
	Description *string
	Start       *time.Time
	End         *time.Time
	Color       *int
	Version     *int64
}

// ValidateTaskDates enforces the both-or-neither rule and end >= start.
func ValidateTaskDates(start, end *time.Time) error {
	if (start == nil) != (end == nil) {
		return ErrEitherBothDatesOrNone
	}
	if start != nil && end.Before(*start) {
		return ErrEndBeforeStart
	}
	return nil
}

// ValidateMilestoneColor enforces the palette range.
func ValidateMilestoneColor(color int) error {
	if color < MinMilestoneColor || color > MaxMilestoneColor {
		return ErrInvalidColor
	}
	return nil
}

func requireTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	return title, nil
}

func descriptionOf(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	return timePtr(Stamp(*value))
}

// NewAnnotation validates input and builds a new annotation.
func NewAnnotation(projectID, creatorID string, input EntryInput, now func() time.Time, idGenerator func() (string, error)) (Annotation, error) {
	now, idGenerator = defaults(now, idGenerator)
	title, err := requireTitle(input.Title)
	if err != nil {
		return Annotation{}, err
	}
	if input.Start == nil {
		return Annotation{}, ErrStartRequired
	}
	annotationID, err := idGenerator()
	if err != nil {
		return Annotation{}, fmt.Errorf("generate annotation id: %w", err)
	}
	createdAt := Stamp(now())
	return Annotation{
		ID:          annotationID,
		ProjectID:   projectID,
		CreatorID:   creatorID,
		Title:       title,
		Description: descriptionOf(input.Description),
		Start:       Stamp(*input.Start),
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// Apply returns the annotation with an update applied.
func (a Annotation) Apply(input EntryInput, now func() time.Time) (Annotation, error) {
	title, err := requireTitle(input.Title)
	if err != nil {
		return Annotation{}, err
	}
	a.Title = title
	if input.Description != nil {
		a.Description = *input.Description
	}
	if input.Start != nil {
		a.Start = Stamp(*input.Start)
	}
	a.UpdatedAt = nowOrDefault(now)
	return a, nil
}

// NewMilestone validates input and builds a new milestone.
func NewMilestone(projectID, creatorID string, input EntryInput, now func() time.Time, idGenerator func() (string, error)) (Milestone, error) {
	now, idGenerator = defaults(now, idGenerator)
	title, err := requireTitle(input.Title)
	if err != nil {
		return Milestone{}, err
	}
	if input.Start == nil {
		return Milestone{}, ErrStartRequired
	}
	if input.Color == nil {
		return Milestone{}, ErrInvalidColor
	}
	if err := ValidateMilestoneColor(*input.Color); err != nil {
		return Milestone{}, err
	}
	milestoneID, err := idGenerator()
	if err != nil {
		return Milestone{}, fmt.Errorf("generate milestone id: %w", err)
	}
	createdAt := Stamp(now())
	return Milestone{
		ID:          milestoneID,
		ProjectID:   projectID,
		CreatorID:   creatorID,
		Title:       title,
		Description: descriptionOf(input.Description),
		Start:       Stamp(*input.Start),
		Color:       *input.Color,
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// Apply returns the milestone with an update applied.
func (m Milestone) Apply(input EntryInput, now func() time.Time) (Milestone, error) {
	title, err := requireTitle(input.Title)
	if err != nil {
		return Milestone{}, err
	}
	if input.Color != nil {
		if err := ValidateMilestoneColor(*input.Color); err != nil {
			return Milestone{}, err
		}
		m.Color = *input.Color
	}
	m.Title = title
	if input.Description != nil {
		m.Description = *input.Description
	}
	if input.Start != nil {
		m.Start = Stamp(*input.Start)
	}
	m.UpdatedAt = nowOrDefault(now)
	return m, nil
}

// NewTask validates input and builds a new task.
func NewTask(projectID, creatorID string, input EntryInput, now func() time.Time, idGenerator func() (string, error)) (Task, error) {
	now, idGenerator = defaults(now, idGenerator)
	title, err := requireTitle(input.Title)
	if err != nil {
		return Task{}, err
	}
	if err := ValidateTaskDates(input.Start, input.End); err != nil {
		return Task{}, err
	}
	taskID, err := idGenerator()
	if err != nil {
		return Task{}, fmt.Errorf("generate task id: %w", err)
	}
	createdAt := Stamp(now())
	return Task{
		ID:             taskID,
		ProjectID:      projectID,
		CreatorID:      creatorID,
		Title:          title,
		Description:    descriptionOf(input.Description),
		Start:          utcPtr(input.Start),
		End:            utcPtr(input.End),
		ParticipantIDs: []string{},
		ResourceIDs:    []string{},
		OutcomeIDs:     []string{},
		Version:        1,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// Apply returns the task with an update applied. Passing neither start nor
// end takes the task off the timeline.
func (t Task) Apply(input EntryInput, now func() time.Time) (Task, error) {
	title, err := requireTitle(input.Title)
	if err != nil {
		return Task{}, err
	}
	if err := ValidateTaskDates(input.Start, input.End); err != nil {
		return Task{}, err
	}
	t.Title = title
	if input.Description != nil {
		t.Description = *input.Description
	}
	t.Start = utcPtr(input.Start)
	t.End = utcPtr(input.End)
	t.UpdatedAt = nowOrDefault(now)
	return t, nil
}

func defaults(now func() time.Time, idGenerator func() (string, error)) (func() time.Time, func() (string, error)) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return now, idGenerator
}

func nowOrDefault(now func() time.Time) time.Time {
	if now == nil {
		now = time.Now
	}
	return Stamp(now())
}
