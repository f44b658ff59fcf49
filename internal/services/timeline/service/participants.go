package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

// Invite adds targetUserID to the project as a pending participant.
func (s *Service) Invite(ctx context.Context, projectID, targetUserID, actorID string) (participant domain.Participant, err error) {
	ctx, span := s.startSpan(ctx, "Invite", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Participant{}, err
	}
	if _, err := s.store.GetUser(ctx, targetUserID); err != nil {
		return domain.Participant{}, storeErr(err, domain.ErrUserNotFound)
	}
	participant, err = domain.NewInvitation(projectID, targetUserID, s.now, s.newID)
	if err != nil {
		return domain.Participant{}, err
	}
	if err := s.store.PutParticipant(ctx, participant); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.Participant{}, domain.ErrAlreadyParticipant
		}
		return domain.Participant{}, storeErr(err, nil)
	}
	return s.finishTransition(ctx, event.ActionInvite, participant, actorID)
}

// Accept turns the caller's pending invitation into active membership.
func (s *Service) Accept(ctx context.Context, projectID, actorID string) (domain.Participant, error) {
	if _, err := s.gate.RequirePendingParticipant(ctx, projectID, actorID); err != nil {
		return domain.Participant{}, err
	}
	return s.transition(ctx, event.ActionAccept, domain.ParticipantAccept, projectID, actorID, actorID)
}

// Reject declines the caller's pending invitation.
func (s *Service) Reject(ctx context.Context, projectID, actorID string) (domain.Participant, error) {
	if _, err := s.gate.RequirePendingParticipant(ctx, projectID, actorID); err != nil {
		return domain.Participant{}, err
	}
	return s.transition(ctx, event.ActionReject, domain.ParticipantReject, projectID, actorID, actorID)
}

// Leave ends the caller's active membership. The owner can not leave.
func (s *Service) Leave(ctx context.Context, projectID, actorID string) (domain.Participant, error) {
	if _, err := s.gate.RequireActiveParticipant(ctx, projectID, actorID); err != nil {
		return domain.Participant{}, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return domain.Participant{}, storeErr(err, nil)
	}
	if project.OwnerID == actorID {
		return domain.Participant{}, domain.ErrOwnerCannotLeave
	}
	return s.transition(ctx, event.ActionLeave, domain.ParticipantLeave, projectID, actorID, actorID)
}

// Remove ends targetUserID's membership or invitation. Owner only.
func (s *Service) Remove(ctx context.Context, projectID, targetUserID, actorID string) (domain.Participant, error) {
	project, err := s.gate.RequireOwner(ctx, projectID, actorID)
	if err != nil {
		return domain.Participant{}, err
	}
	if project.OwnerID == targetUserID {
		return domain.Participant{}, domain.ErrOwnerCannotBeRemoved
	}
	return s.transition(ctx, event.ActionRemove, domain.ParticipantRemove, projectID, targetUserID, actorID)
}

// transition applies a conditional status write; losing a race reports
// the caller as no longer a participant.
func (s *Service) transition(ctx context.Context, action event.Action, participantAction domain.ParticipantAction, projectID, userID, actorID string) (participant domain.Participant, err error) {
	ctx, span := s.startSpan(ctx, "Participant."+string(action), attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	transition, err := domain.TransitionFor(participantAction)
	if err != nil {
		return domain.Participant{}, err
	}
	participant, err = s.store.TransitionParticipant(ctx, projectID, userID, transition.From, transition.To, domain.Stamp(s.now()))
	if err != nil {
		return domain.Participant{}, storeErr(err, domain.ErrNotProjectParticipant)
	}
	return s.finishTransition(ctx, action, participant, actorID)
}

func (s *Service) finishTransition(ctx context.Context, action event.Action, participant domain.Participant, actorID string) (domain.Participant, error) {
	// The transition is committed; a missing summary must not hide it.
	users, err := s.summaries(ctx, participant.UserID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"project_id": participant.ProjectID,
			"user_id":    participant.UserID,
		}).Warn("load participant summary")
	} else {
		participant.User = users[participant.UserID]
	}
	s.publish(ctx, action, domain.ObjectParticipant, participant, actorID)
	return participant, nil
}
