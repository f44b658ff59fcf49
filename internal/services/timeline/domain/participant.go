package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/learning-layers/Timeliner/internal/platform/id"
)

// ParticipantStatus is the membership state of a user in a project.
type ParticipantStatus string

const (
	// ParticipantPending marks an invited user who has not answered yet.
	ParticipantPending ParticipantStatus = "pending"
	// ParticipantActive marks a current member.
	ParticipantActive ParticipantStatus = "active"
	// ParticipantPlaceholder marks past membership: left, removed or rejected.
	ParticipantPlaceholder ParticipantStatus = "placeholder"
)

// Valid reports whether s is a known participant status.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantPending, ParticipantActive, ParticipantPlaceholder:
		return true
	default:
		return false
	}
}

// HasAccess reports whether the status grants read access to the project.
func (s ParticipantStatus) HasAccess() bool {
	return s == ParticipantPending || s == ParticipantActive
}

// ParticipantAction is a membership transition.
type ParticipantAction string

const (
	ParticipantInvite ParticipantAction = "invite"
	ParticipantAccept ParticipantAction = "accept"
	ParticipantReject ParticipantAction = "reject"
	ParticipantLeave  ParticipantAction = "leave"
	ParticipantRemove ParticipantAction = "remove"
)

// Participant is a membership row for one (project, user) pair.
type Participant struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project"`
	UserID         string            `json:"user_id"`
	User           *UserSummary      `json:"user,omitempty"`
	Status         ParticipantStatus `json:"status"`
	ShowOnTimeline bool              `json:"show_on_timeline"`
	CreatedAt      time.Time         `json:"created"`
	UpdatedAt      time.Time         `json:"updated"`
}

func (p Participant) RecordID() string      { return p.ID }
func (p Participant) RecordProject() string { return p.ProjectID }

// Transition describes the statuses a membership action may start from
// and the status it ends in.
type Transition struct {
	From []ParticipantStatus
	To   ParticipantStatus
}

// Allows reports whether the transition may start from status.
func (t Transition) Allows(status ParticipantStatus) bool {
	for _, from := range t.From {
		if from == status {
			return true
		}
	}
	return false
}

// transitions lists every state change after the initial invite. Nothing
// leads back from placeholder.
var transitions = map[ParticipantAction]Transition{
	ParticipantAccept: {From: []ParticipantStatus{ParticipantPending}, To: ParticipantActive},
	ParticipantReject: {From: []ParticipantStatus{ParticipantPending}, To: ParticipantPlaceholder},
	ParticipantLeave:  {From: []ParticipantStatus{ParticipantActive}, To: ParticipantPlaceholder},
	ParticipantRemove: {From: []ParticipantStatus{ParticipantActive, ParticipantPending}, To: ParticipantPlaceholder},
}

// TransitionFor returns the state change for action.
func TransitionFor(action ParticipantAction) (Transition, error) {
	transition, ok := transitions[action]
	if !ok {
		return Transition{}, fmt.Errorf("no transition for participant action %q", action)
	}
	return transition, nil
}

// NewInvitation builds the pending row created by an invite.
func NewInvitation(projectID, userID string, now func() time.Time, idGenerator func() (string, error)) (Participant, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return Participant{}, ErrNotFound
	}
	participantID, err := idGenerator()
	if err != nil {
		return Participant{}, fmt.Errorf("generate participant id: %w", err)
	}
	createdAt := Stamp(now())
	return Participant{
		ID:             participantID,
		ProjectID:      projectID,
		UserID:         userID,
		Status:         ParticipantPending,
		ShowOnTimeline: true,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}
