package domain

import (
	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
)

var (
	// ErrTitleRequired indicates a missing or blank title.
	ErrTitleRequired = apperrors.Field(apperrors.CodeRequiredParameterMissing, "title is required", "title")
	// ErrStartRequired indicates a missing start date.
	ErrStartRequired = apperrors.Field(apperrors.CodeRequiredParameterMissing, "start is required", "start")
	// ErrEndBeforeStart indicates an end date earlier than the start date.
	ErrEndBeforeStart = apperrors.Field(apperrors.CodeEndDateBeforeStart, "end date is before start", "end")
	// ErrEitherBothDatesOrNone indicates a task with only one of start or end.
	ErrEitherBothDatesOrNone = apperrors.Field(apperrors.CodeEitherBothDatesOrNone, "task needs both start and end or neither", "start,end")
	// ErrInvalidColor indicates a milestone color outside the palette.
	ErrInvalidColor = apperrors.Field(apperrors.CodeInvalidColor, "milestone color must be between 1 and 6", "color")
	// ErrInvalidProjectStatus indicates an unknown project status value.
	ErrInvalidProjectStatus = apperrors.Field(apperrors.CodeInvalidStatus, "project status is invalid", "status")
	// ErrEitherURLOrFileNotBoth indicates a resource with both a url and a file.
	ErrEitherURLOrFileNotBoth = apperrors.New(apperrors.CodeEitherURLOrFileNotBoth, "resource takes a url or a file, not both")
	// ErrNoURLOrFileProvided indicates a resource with neither a url nor a file.
	ErrNoURLOrFileProvided = apperrors.New(apperrors.CodeNoURLOrFileProvided, "resource needs a url or a file")
	// ErrFileRequired indicates an outcome created without a file.
	ErrFileRequired = apperrors.Field(apperrors.CodeRequiredParameterMissing, "file is required", "file")
	// ErrMessageRequired indicates a blank message.
	ErrMessageRequired = apperrors.Field(apperrors.CodeRequiredParameterMissing, "message is required", "message")
	// ErrMessageTooLong indicates a message over MaxMessageLength characters.
	ErrMessageTooLong = apperrors.Field(apperrors.CodeMessageTooLong, "message is too long", "message")
	// ErrInvalidAttachmentKind indicates an unknown task attachment kind.
	ErrInvalidAttachmentKind = apperrors.New(apperrors.CodeInvalidAttachmentKind, "attachment kind must be participant, resource or outcome")
	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = apperrors.Field(apperrors.CodeInvalidEmail, "email is invalid", "email")
	// ErrPasswordTooShort indicates a password under MinPasswordLength characters.
	ErrPasswordTooShort = apperrors.Field(apperrors.CodePasswordTooShort, "password is too short", "password")

	// ErrNotProjectOwner indicates the caller does not own the project.
	ErrNotProjectOwner = apperrors.New(apperrors.CodeNotProjectOwner, "user is not the project owner")
	// ErrNotProjectParticipant indicates the caller lacks the required participant status.
	ErrNotProjectParticipant = apperrors.New(apperrors.CodeNotProjectParticipant, "user is not a project participant")
	// ErrOwnerCannotLeave indicates the owner tried to leave their own project.
	ErrOwnerCannotLeave = apperrors.New(apperrors.CodeOwnerCannotLeave, "project owner can not leave")
	// ErrOwnerCannotBeRemoved indicates an attempt to remove the owner.
	ErrOwnerCannotBeRemoved = apperrors.New(apperrors.CodeOwnerCannotBeRemoved, "project owner can not be removed")
	// ErrStatusChangeByNotOwner indicates a non-owner changing project status.
	ErrStatusChangeByNotOwner = apperrors.New(apperrors.CodeStatusChangeByNotOwner, "only the owner can change project status")
	// ErrPermission indicates an entity addressed through a project it does not belong to.
	ErrPermission = apperrors.New(apperrors.CodePermissionError, "entity does not belong to project")

	// ErrNotFound indicates a missing entity.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "not found")
	// ErrUserNotFound indicates a missing user.
	ErrUserNotFound = apperrors.New(apperrors.CodeUserNotFound, "user not found")

	// ErrAlreadyParticipant indicates a second membership row for the same user and project.
	ErrAlreadyParticipant = apperrors.New(apperrors.CodeAlreadyParticipant, "user already is a participant")
	// ErrAlreadyAttached indicates a reference already present in a task set.
	ErrAlreadyAttached = apperrors.New(apperrors.CodeAlreadyAttached, "reference already attached to task")
	// ErrNotAttached indicates a detach of a reference the task does not hold.
	ErrNotAttached = apperrors.New(apperrors.CodeNotAttached, "reference is not attached to task")
	// ErrVersionConflict indicates a write based on a stale version.
	ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "entity was changed by someone else")
	// ErrEmailAlreadyRegistered indicates a registration for a known email.
	ErrEmailAlreadyRegistered = apperrors.New(apperrors.CodeEmailAlreadyRegistered, "email is already registered")

	// ErrItemLimitExceeded indicates a page size over MaxPageSize.
	ErrItemLimitExceeded = apperrors.Field(apperrors.CodeMaxItemLimitExceeded, "limit is too large", "limit")
	// ErrInvalidDate indicates an unparsable date value.
	ErrInvalidDate = apperrors.New(apperrors.CodeInvalidDate, "date is invalid")

	// ErrAuthenticationFailed indicates a bad email/password pair.
	ErrAuthenticationFailed = apperrors.New(apperrors.CodeAuthenticationFailed, "authentication failed")
	// ErrUserNotActivated indicates a login into an unconfirmed account.
	ErrUserNotActivated = apperrors.New(apperrors.CodeUserNotActivated, "user is not activated")
	// ErrConfirmationKeyMissing indicates an unknown or expired confirmation key.
	ErrConfirmationKeyMissing = apperrors.New(apperrors.CodeConfirmationKeyMissing, "confirmation key is expired or missing")
	// ErrUserNotAdmin indicates an admin-only operation by a regular user.
	ErrUserNotAdmin = apperrors.New(apperrors.CodeUserNotAdmin, "user is not an admin")
	// ErrCannotRemoveOwnAdmin indicates an admin revoking their own flag.
	ErrCannotRemoveOwnAdmin = apperrors.New(apperrors.CodeCannotRemoveOwnAdmin, "can not remove own admin rights")
	// ErrAlreadyAdmin indicates granting admin to an admin.
	ErrAlreadyAdmin = apperrors.New(apperrors.CodeAlreadyAdmin, "user already is an admin")
	// ErrNotAdmin indicates revoking admin from a regular user.
	ErrNotAdmin = apperrors.New(apperrors.CodeNotAdmin, "target user is not an admin")
)
