// Package errors provides structured error handling for the timeline service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeRequiredParameterMissing Code = "REQUIRED_PARAMETER_MISSING"
	CodeEndDateBeforeStart       Code = "END_DATE_BEFORE_START"
	CodeEitherBothDatesOrNone    Code = "EITHER_BOTH_DATES_OR_NONE"
	CodeInvalidColor             Code = "INVALID_COLOR"
	CodeInvalidStatus            Code = "INVALID_STATUS"
	CodeInvalidDate              Code = "INVALID_DATE"
	CodeEitherURLOrFileNotBoth   Code = "EITHER_URL_OR_FILE_NOT_BOTH"
	CodeNoURLOrFileProvided      Code = "NO_URL_OR_FILE_PROVIDED"
	CodeMessageTooLong           Code = "MESSAGE_IS_TOO_LONG"
	CodeMaxItemLimitExceeded     Code = "MAX_ITEM_LIMIT_EXCEEDED"
	CodeInvalidAttachmentKind    Code = "INVALID_ATTACHMENT_KIND"
	CodeInvalidEmail             Code = "INVALID_EMAIL"
	CodePasswordTooShort         Code = "PASSWORD_TOO_SHORT"
	CodeUnknownValue             Code = "UNKNOWN_VALUE"

	// Authentication errors
	CodeAuthorizationHeaderMissing Code = "AUTHORIZATION_HEADER_MISSING"
	CodeMalformedAuthorization     Code = "MALFORMED_OR_WRONG_AUTHORIZATION_HEADER"
	CodeTokenVerificationFailed    Code = "TOKEN_VERIFICATION_FAILED"
	CodeAuthenticationFailed       Code = "AUTHENTICATION_FAILED"
	CodeNotAuthenticated           Code = "NOT_AUTHENTICATED"
	CodeSocialStateMismatch        Code = "WRONG_STATE"

	// Authorization errors
	CodeNotProjectOwner        Code = "NOT_A_PROJECT_OWNER"
	CodeNotProjectParticipant  Code = "NOT_A_PROJECT_PARTICIPANT"
	CodeOwnerCannotLeave       Code = "OWNER_CAN_NOT_LEAVE"
	CodeOwnerCannotBeRemoved   Code = "OWNER_CAN_NOT_BE_REMOVED"
	CodeStatusChangeByNotOwner Code = "STATUS_CHANGE_BY_NOT_OWNER"
	CodePermissionError        Code = "PERMISSION_ERROR"
	CodeUserNotAdmin           Code = "USER_NOT_ADMIN"
	CodeCannotRemoveOwnAdmin   Code = "CAN_NOT_REMOVE_OWN_ADMIN"
	CodeAlreadyAdmin           Code = "ALREADY_AN_ADMIN"
	CodeNotAdmin               Code = "NOT_AN_ADMIN"
	CodeUserNotActivated       Code = "USER_NOT_ACTIVATED"

	// Not found errors
	CodeNotFound               Code = "NOT_FOUND"
	CodeUserNotFound           Code = "USER_NOT_FOUND"
	CodeConfirmationKeyMissing Code = "EXPIRED_OR_MISSING_KEY"

	// Conflict errors
	CodeAlreadyParticipant     Code = "ALREADY_IS_A_PARTICIPANT"
	CodeAlreadyAttached        Code = "ALREADY_ATTACHED"
	CodeNotAttached            Code = "NOT_ATTACHED"
	CodeVersionConflict        Code = "VERSION_CONFLICT"
	CodeEmailAlreadyRegistered Code = "EMAIL_ALREADY_REGISTERED"

	// Infrastructure errors
	CodePersistenceUnavailable Code = "PERSISTENCE_UNAVAILABLE"
	CodeBlobStore              Code = "BLOB_STORE_ERROR"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - validation failures, bad input
	case CodeRequiredParameterMissing,
		CodeEndDateBeforeStart,
		CodeEitherBothDatesOrNone,
		CodeInvalidColor,
		CodeInvalidStatus,
		CodeInvalidDate,
		CodeEitherURLOrFileNotBoth,
		CodeNoURLOrFileProvided,
		CodeMessageTooLong,
		CodeMaxItemLimitExceeded,
		CodeInvalidAttachmentKind,
		CodeInvalidEmail,
		CodePasswordTooShort,
		CodeUnknownValue,
		CodeSocialStateMismatch:
		return http.StatusBadRequest

	// Unauthorized - missing or invalid credentials
	case CodeAuthorizationHeaderMissing,
		CodeMalformedAuthorization,
		CodeTokenVerificationFailed,
		CodeAuthenticationFailed,
		CodeNotAuthenticated:
		return http.StatusUnauthorized

	// Forbidden - caller lacks the required role or status
	case CodeNotProjectOwner,
		CodeNotProjectParticipant,
		CodeOwnerCannotLeave,
		CodeOwnerCannotBeRemoved,
		CodeStatusChangeByNotOwner,
		CodePermissionError,
		CodeUserNotAdmin,
		CodeCannotRemoveOwnAdmin,
		CodeAlreadyAdmin,
		CodeNotAdmin,
		CodeUserNotActivated:
		return http.StatusForbidden

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeUserNotFound,
		CodeConfirmationKeyMissing:
		return http.StatusNotFound

	// Conflict - uniqueness, set membership and version checks
	case CodeAlreadyParticipant,
		CodeAlreadyAttached,
		CodeNotAttached,
		CodeVersionConflict,
		CodeEmailAlreadyRegistered:
		return http.StatusConflict

	case CodePersistenceUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// WSCode maps domain codes to the coarse codes carried in websocket error frames.
func (c Code) WSCode() string {
	switch c.HTTPStatus() {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
