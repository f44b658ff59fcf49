package domain

import (
	"fmt"
	"strings"
	"time"
)

// Resource is a reference material attached to a project: a link or a file.
type Resource struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project"`
	CreatorID   string       `json:"creator_id"`
	Creator     *UserSummary `json:"creator,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url,omitempty"`
	File        *FileInfo    `json:"file,omitempty"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created"`
	UpdatedAt   time.Time    `json:"updated"`
}

func (r Resource) RecordID() string      { return r.ID }
func (r Resource) RecordProject() string { return r.ProjectID }
func (r Resource) RecordTitle() string   { return r.Title }

// ResourceInput carries resource create and update fields.
type ResourceInput struct {
	Title       string
	Description *string
	URL         string
	File        *FileInfo
	Version     *int64
}

// ResourceBlobKey is the blob store key of a resource file.
func ResourceBlobKey(projectID, resourceID string) string {
	return projectID + "/" + resourceID
}

// NewResource validates input and builds a new resource.
func NewResource(projectID, creatorID string, input ResourceInput, now func() time.Time, idGenerator func() (string, error)) (Resource, error) {
	now, idGenerator = defaults(now, idGenerator)
	title, err := requireTitle(input.Title)
	if err != nil {
		return Resource{}, err
	}
	url := strings.TrimSpace(input.URL)
	if url != "" && input.File != nil {
		return Resource{}, ErrEitherURLOrFileNotBoth
	}
	if url == "" && input.File == nil {
		return Resource{}, ErrNoURLOrFileProvided
	}
	resourceID, err := idGenerator()
	if err != nil {
		return Resource{}, fmt.Errorf("generate resource id: %w", err)
	}
	createdAt := Stamp(now())
	resource := Resource{
		ID:          resourceID,
		ProjectID:   projectID,
		CreatorID:   creatorID,
		Title:       title,
		Description: descriptionOf(input.Description),
		URL:         url,
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if input.File != nil {
		file := *input.File
		resource.File = &file
	}
	return resource, nil
}

// Apply returns the resource with an update applied. dropBlob reports
// that a stored file was replaced by a url.
func (r Resource) Apply(input ResourceInput, now func() time.Time) (updated Resource, dropBlob bool, err error) {
	title, err := requireTitle(input.Title)
	if err != nil {
		return Resource{}, false, err
	}
	url := strings.TrimSpace(input.URL)
	if url != "" && input.File != nil {
		return Resource{}, false, ErrEitherURLOrFileNotBoth
	}
	r.Title = title
	if input.Description != nil {
		r.Description = *input.Description
	}
	switch {
	case url != "":
		dropBlob = r.File != nil
		r.URL = url
		r.File = nil
	case input.File != nil:
		file := *input.File
		r.File = &file
		r.URL = ""
	}
	r.UpdatedAt = nowOrDefault(now)
	return r, dropBlob, nil
}
