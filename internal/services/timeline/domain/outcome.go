package domain

import (
	"fmt"
	"time"
)

// Outcome is a deliverable with an append-only list of file versions.
type Outcome struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project"`
	CreatorID   string           `json:"creator_id"`
	Creator     *UserSummary     `json:"creator,omitempty"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Versions    []OutcomeVersion `json:"versions"`
	Version     int64            `json:"version"`
	CreatedAt   time.Time        `json:"created"`
	UpdatedAt   time.Time        `json:"updated"`
}

// OutcomeVersion is one immutable upload of an outcome.
type OutcomeVersion struct {
	ID        string       `json:"id"`
	OutcomeID string       `json:"-"`
	File      FileInfo     `json:"file"`
	CreatorID string       `json:"creator_id"`
	Creator   *UserSummary `json:"creator,omitempty"`
	CreatedAt time.Time    `json:"created"`
}

func (o Outcome) RecordID() string      { return o.ID }
func (o Outcome) RecordProject() string { return o.ProjectID }
func (o Outcome) RecordTitle() string   { return o.Title }

// LatestVersion returns the most recent upload.
func (o Outcome) LatestVersion() (OutcomeVersion, bool) {
	if len(o.Versions) == 0 {
		return OutcomeVersion{}, false
	}
	return o.Versions[len(o.Versions)-1], true
}

// OutcomeInput carries outcome create and update fields.
type OutcomeInput struct {
	Title       string
	Description *string
	File        *FileInfo
	Version     *int64
}

// OutcomeVersionBlobKey is the blob store key of one outcome version.
func OutcomeVersionBlobKey(projectID, outcomeID, versionID string) string {
	return projectID + "/" + outcomeID + "/" + versionID
}

// NewOutcome validates input and builds an outcome with its first version.
func NewOutcome(projectID, creatorID string, input OutcomeInput, now func() time.Time, idGenerator func() (string, error)) (Outcome, error) {
	now, idGenerator = defaults(now, idGenerator)
	title, err := requireTitle(input.Title)
	if err != nil {
		return Outcome{}, err
	}
	if input.File == nil {
		return Outcome{}, ErrFileRequired
	}
	outcomeID, err := idGenerator()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate outcome id: %w", err)
	}
	createdAt := Stamp(now())
	outcome := Outcome{
		ID:          outcomeID,
		ProjectID:   projectID,
		CreatorID:   creatorID,
		Title:       title,
		Description: descriptionOf(input.Description),
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	version, err := newOutcomeVersion(outcomeID, creatorID, *input.File, createdAt, idGenerator)
	if err != nil {
		return Outcome{}, err
	}
	outcome.Versions = []OutcomeVersion{version}
	return outcome, nil
}

// Apply returns the outcome with an update applied. When input carries a
// file the new version is returned too.
func (o Outcome) Apply(input OutcomeInput, actorID string, now func() time.Time, idGenerator func() (string, error)) (Outcome, *OutcomeVersion, error) {
	now, idGenerator = defaults(now, idGenerator)
	title, err := requireTitle(input.Title)
	if err != nil {
		return Outcome{}, nil, err
	}
	o.Title = title
	if input.Description != nil {
		o.Description = *input.Description
	}
	o.UpdatedAt = Stamp(now())
	if input.File == nil {
		return o, nil, nil
	}
	version, err := newOutcomeVersion(o.ID, actorID, *input.File, o.UpdatedAt, idGenerator)
	if err != nil {
		return Outcome{}, nil, err
	}
	o.Versions = append(append([]OutcomeVersion{}, o.Versions...), version)
	return o, &version, nil
}

func newOutcomeVersion(outcomeID, creatorID string, file FileInfo, createdAt time.Time, idGenerator func() (string, error)) (OutcomeVersion, error) {
	versionID, err := idGenerator()
	if err != nil {
		return OutcomeVersion{}, fmt.Errorf("generate outcome version id: %w", err)
	}
	return OutcomeVersion{
		ID:        versionID,
		OutcomeID: outcomeID,
		File:      file,
		CreatorID: creatorID,
		CreatedAt: createdAt,
	}, nil
}
