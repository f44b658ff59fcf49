package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/learning-layers/Timeliner/internal/platform/id"
)

// ProjectStatus describes the lifecycle of a project.
type ProjectStatus string

const (
	// ProjectStatusActive is the status of a project in progress.
	ProjectStatusActive ProjectStatus = "active"
	// ProjectStatusFinished marks a completed project.
	ProjectStatusFinished ProjectStatus = "finished"
)

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	return s == ProjectStatusActive || s == ProjectStatusFinished
}

// Project is the collaboration container every other entity belongs to.
type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Goal        string        `json:"goal"`
	Start       time.Time     `json:"start"`
	End         *time.Time    `json:"end,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatorID   string        `json:"creator_id"`
	OwnerID     string        `json:"owner_id"`
	Creator     *UserSummary  `json:"creator,omitempty"`
	Owner       *UserSummary  `json:"owner,omitempty"`
	// Participants is filled from the participation store on read.
	Participants []Participant `json:"participants"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"created"`
	UpdatedAt    time.Time     `json:"updated"`
}

func (p Project) RecordID() string      { return p.ID }
func (p Project) RecordProject() string { return p.ID }
func (p Project) RecordTitle() string   { return p.Title }

// CreateProjectInput describes the fields needed to create a project.
type CreateProjectInput struct {
	Title       string
	Description string
	Goal        string
	Start       *time.Time
	End         *time.Time
}

// UpdateProjectInput describes a full project edit. A nil End clears it,
// a nil Status keeps the current one.
type UpdateProjectInput struct {
	Title       string
	Description *string
	Goal        *string
	End         *time.Time
	Status      *ProjectStatus
	Version     *int64
}

// CreateProject creates a project owned by creatorID together with the
// owner's active participant row.
func CreateProject(input CreateProjectInput, creatorID string, now func() time.Time, idGenerator func() (string, error)) (Project, Participant, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Project{}, Participant{}, ErrTitleRequired
	}
	if input.Start == nil {
		return Project{}, Participant{}, ErrStartRequired
	}
	start := Stamp(*input.Start)
	var end *time.Time
	if input.End != nil {
		if input.End.Before(start) {
			return Project{}, Participant{}, ErrEndBeforeStart
		}
		end = timePtr(Stamp(*input.End))
	}

	projectID, err := idGenerator()
	if err != nil {
		return Project{}, Participant{}, fmt.Errorf("generate project id: %w", err)
	}
	participantID, err := idGenerator()
	if err != nil {
		return Project{}, Participant{}, fmt.Errorf("generate participant id: %w", err)
	}

	createdAt := Stamp(now())
	owner := Participant{
		ID:             participantID,
		ProjectID:      projectID,
		UserID:         creatorID,
		Status:         ParticipantActive,
		ShowOnTimeline: true,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	return Project{
		ID:           projectID,
		Title:        title,
		Description:  input.Description,
		Goal:         input.Goal,
		Start:        start,
		End:          end,
		Status:       ProjectStatusActive,
		CreatorID:    creatorID,
		OwnerID:      creatorID,
		Participants: []Participant{owner},
		Version:      1,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, owner, nil
}

// ApplyProjectUpdate returns project with input applied. actorID is checked
// against the owner when the status changes.
func ApplyProjectUpdate(project Project, input UpdateProjectInput, actorID string, now func() time.Time) (Project, error) {
	if now == nil {
		now = time.Now
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Project{}, ErrTitleRequired
	}
	project.Title = title
	if input.Description != nil {
		project.Description = *input.Description
	}
	if input.Goal != nil {
		project.Goal = *input.Goal
	}
	if input.Status != nil && *input.Status != project.Status {
		if project.OwnerID != actorID {
			return Project{}, ErrStatusChangeByNotOwner
		}
		if !input.Status.Valid() {
			return Project{}, ErrInvalidProjectStatus
		}
		project.Status = *input.Status
	}
	if input.End != nil {
		if input.End.Before(project.Start) {
			return Project{}, ErrEndBeforeStart
		}
		project.End = timePtr(Stamp(*input.End))
	} else {
		project.End = nil
	}
	project.UpdatedAt = Stamp(now())
	return project, nil
}
