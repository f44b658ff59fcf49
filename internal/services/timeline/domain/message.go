package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength caps message text, counted in characters.
const MaxMessageLength = 150

// Message is an append-only chat line posted to a project.
type Message struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project"`
	CreatorID string       `json:"creator_id"`
	Creator   *UserSummary `json:"creator,omitempty"`
	Text      string       `json:"message"`
	CreatedAt time.Time    `json:"created"`
}

func (m Message) RecordID() string      { return m.ID }
func (m Message) RecordProject() string { return m.ProjectID }

// NewMessage trims and validates text and builds a new message.
func NewMessage(projectID, creatorID, text string, now func() time.Time, idGenerator func() (string, error)) (Message, error) {
	now, idGenerator = defaults(now, idGenerator)
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrMessageRequired
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return Message{}, ErrMessageTooLong
	}
	messageID, err := idGenerator()
	if err != nil {
		return Message{}, fmt.Errorf("generate message id: %w", err)
	}
	return Message{
		ID:        messageID,
		ProjectID: projectID,
		CreatorID: creatorID,
		Text:      text,
		CreatedAt: Stamp(now()),
	}, nil
}

// MaxPageSize caps message and activity pages.
const MaxPageSize = 50

// PageLimit resolves a requested page size. Zero selects MaxPageSize.
func PageLimit(limit int) (int, error) {
	switch {
	case limit <= 0:
		return MaxPageSize, nil
	case limit > MaxPageSize:
		return 0, ErrItemLimitExceeded
	default:
		return limit, nil
	}
}
