package realtime

import (
	"encoding/json"
	"time"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

const (
	frameAuthenticate = "authenticate"
	frameLogout       = "logout"
	frameJoin         = "join"
	frameLeave        = "leave"
	frameError        = "error"

	movePrefix = "move:"
)

// Transport-level error codes. Domain failures carry their own codes.
const (
	codeInvalidFrame     = "INVALID_FRAME"
	codePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	codeRateLimited      = "RATE_LIMITED"
	codeUnsupportedFrame = "UNSUPPORTED_FRAME"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// FrameError is the error body of a failed reply.
type FrameError struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Reply acknowledges one client frame.
type Reply struct {
	Success bool        `json:"success"`
	Error   *FrameError `json:"error,omitempty"`
	Data    any         `json:"data,omitempty"`
}

// Presence is broadcast when a user joins or leaves a room.
type Presence struct {
	Project string              `json:"project"`
	User    *domain.UserSummary `json:"user"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type roomPayload struct {
	ID string `json:"id"`
}

type movePayload struct {
	ID      string     `json:"id"`
	Start   *time.Time `json:"start"`
	End     *time.Time `json:"end"`
	Version *int64     `json:"version"`
}

func errorReply(err error) Reply {
	code := apperrors.CodeOf(err)
	message := err.Error()
	if code == apperrors.CodeUnknown {
		message = "internal error"
	}
	return Reply{Error: &FrameError{Code: string(code), Kind: code.WSCode(), Message: message}}
}

func transportError(code, message string) Reply {
	return Reply{Error: &FrameError{Code: code, Message: message}}
}

func encodeFrame(frameType, requestID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: frameType, RequestID: requestID, Payload: raw})
}
