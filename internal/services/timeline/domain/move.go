package domain

import "time"

// MoveInput carries the new placement of a movable entity.
type MoveInput struct {
	Start   *time.Time
	End     *time.Time
	Version *int64
}

// MoveRecord is the payload broadcast when an entity changes place on the
// timeline.
type MoveRecord struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project"`
	Title     string     `json:"title"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Version   int64      `json:"version"`
}

func (m MoveRecord) RecordID() string      { return m.ID }
func (m MoveRecord) RecordProject() string { return m.ProjectID }
func (m MoveRecord) RecordTitle() string   { return m.Title }
func (m MoveRecord) RecordDates() (*time.Time, *time.Time) {
	return m.Start, m.End
}

// Move returns the annotation placed at a new start.
func (a Annotation) Move(input MoveInput, now func() time.Time) (Annotation, error) {
	if input.Start == nil {
		return Annotation{}, ErrStartRequired
	}
	a.Start = Stamp(*input.Start)
	a.UpdatedAt = nowOrDefault(now)
	return a, nil
}

// MoveRecord summarises the annotation placement.
func (a Annotation) MoveRecord() MoveRecord {
	return MoveRecord{ID: a.ID, ProjectID: a.ProjectID, Title: a.Title, Start: timePtr(a.Start), Version: a.Version}
}

// Move returns the milestone placed at a new start.
func (m Milestone) Move(input MoveInput, now func() time.Time) (Milestone, error) {
	if input.Start == nil {
		return Milestone{}, ErrStartRequired
	}
	m.Start = Stamp(*input.Start)
	m.UpdatedAt = nowOrDefault(now)
	return m, nil
}

// MoveRecord summarises the milestone placement.
func (m Milestone) MoveRecord() MoveRecord {
	return MoveRecord{ID: m.ID, ProjectID: m.ProjectID, Title: m.Title, Start: timePtr(m.Start), Version: m.Version}
}

// Move returns the task placed at a new range. Both dates are required.
func (t Task) Move(input MoveInput, now func() time.Time) (Task, error) {
	if input.Start == nil && input.End == nil {
		return Task{}, ErrStartRequired
	}
	if err := ValidateTaskDates(input.Start, input.End); err != nil {
		return Task{}, err
	}
	t.Start = utcPtr(input.Start)
	t.End = utcPtr(input.End)
	t.UpdatedAt = nowOrDefault(now)
	return t, nil
}

// MoveRecord summarises the task placement.
func (t Task) MoveRecord() MoveRecord {
	return MoveRecord{ID: t.ID, ProjectID: t.ProjectID, Title: t.Title, Start: t.Start, End: t.End, Version: t.Version}
}
