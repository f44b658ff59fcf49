package domain

import "strings"

// AttachmentKind names a task reference set.
type AttachmentKind string

const (
	AttachParticipant AttachmentKind = "participant"
	AttachResource    AttachmentKind = "resource"
	AttachOutcome     AttachmentKind = "outcome"
)

// ParseAttachmentKind accepts singular or plural kind names, as they appear
// in routes.
func ParseAttachmentKind(value string) (AttachmentKind, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(value)), "s") {
	case string(AttachParticipant):
		return AttachParticipant, nil
	case string(AttachResource):
		return AttachResource, nil
	case string(AttachOutcome):
		return AttachOutcome, nil
	default:
		return "", ErrInvalidAttachmentKind
	}
}

// Attachment describes one attach or detach of a reference to a task.
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	RefID    string         `json:"id"`
	RefTitle string         `json:"title,omitempty"`
	Detached bool           `json:"-"`
}

func (t *Task) refs(kind AttachmentKind) *[]string {
	switch kind {
	case AttachParticipant:
		return &t.ParticipantIDs
	case AttachResource:
		return &t.ResourceIDs
	case AttachOutcome:
		return &t.OutcomeIDs
	default:
		return nil
	}
}

// HasAttachment reports whether refID is in the kind's reference set.
func (t Task) HasAttachment(kind AttachmentKind, refID string) bool {
	refs := t.refs(kind)
	if refs == nil {
		return false
	}
	for _, existing := range *refs {
		if existing == refID {
			return true
		}
	}
	return false
}

// Attach returns the task with refID added to the kind's reference set.
func (t Task) Attach(kind AttachmentKind, refID string) (Task, error) {
	if t.refs(kind) == nil {
		return Task{}, ErrInvalidAttachmentKind
	}
	if t.HasAttachment(kind, refID) {
		return Task{}, ErrAlreadyAttached
	}
	updated := t.cloneRefs()
	refs := updated.refs(kind)
	*refs = append(*refs, refID)
	return updated, nil
}

// Detach returns the task with refID removed from the kind's reference set.
func (t Task) Detach(kind AttachmentKind, refID string) (Task, error) {
	if t.refs(kind) == nil {
		return Task{}, ErrInvalidAttachmentKind
	}
	if !t.HasAttachment(kind, refID) {
		return Task{}, ErrNotAttached
	}
	updated := t.cloneRefs()
	refs := updated.refs(kind)
	kept := (*refs)[:0]
	for _, existing := range *refs {
		if existing != refID {
			kept = append(kept, existing)
		}
	}
	*refs = kept
	return updated, nil
}

func (t Task) cloneRefs() Task {
	t.ParticipantIDs = append([]string{}, t.ParticipantIDs...)
	t.ResourceIDs = append([]string{}, t.ResourceIDs...)
	t.OutcomeIDs = append([]string{}, t.OutcomeIDs...)
	return t
}
