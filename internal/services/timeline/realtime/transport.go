package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

var errNotAuthenticated = apperrors.New(apperrors.CodeNotAuthenticated, "authenticate before using rooms")

func (h *Hub) serveConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	// Frames above the hard cap are discarded unread.
	conn.MaxPayloadBytes = h.cfg.MaxPayloadBytes * 4

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}
	s := newSession(newSessionID(), &peer{conn: conn}, rate.NewLimiter(rate.Limit(h.cfg.FramesPerSecond), h.cfg.FrameBurst))
	h.addSession(s)
	logger := h.logger.WithField("session_id", s.id)
	defer func() {
		h.leaveAll(ctx, s)
		h.removeSession(s)
	}()

	if h.cfg.AuthTimeout > 0 {
		timer := time.AfterFunc(h.cfg.AuthTimeout, func() {
			if s.currentUser() == nil {
				logger.Info("closing unauthenticated connection")
				_ = conn.Close()
			}
		})
		defer timer.Stop()
	}

	decodeErrors := 0
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				h.reply(s, frameError, "", transportError(codePayloadTooLarge, "frame too large"))
				continue
			}
			if !errors.Is(err, io.EOF) {
				logger.WithError(err).Debug("read frame")
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			decodeErrors++
			h.reply(s, frameError, "", transportError(codeInvalidFrame, "invalid frame"))
			if decodeErrors >= h.cfg.MaxDecodeErrors {
				return
			}
			continue
		}
		decodeErrors = 0

		if !s.limiter.Allow() {
			h.reply(s, frameError, frame.RequestID, transportError(codeRateLimited, "rate limit exceeded"))
			return
		}
		if len(frame.Payload) > h.cfg.MaxPayloadBytes {
			h.reply(s, frame.Type, frame.RequestID, transportError(codePayloadTooLarge, "payload too large"))
			continue
		}
		h.dispatch(ctx, s, frame)
	}
}

func (h *Hub) dispatch(ctx context.Context, s *session, frame Frame) {
	switch {
	case frame.Type == frameAuthenticate:
		h.handleAuthenticate(ctx, s, frame)
	case frame.Type == frameLogout:
		h.leaveAll(ctx, s)
		s.setUser(nil)
		h.reply(s, frame.Type, frame.RequestID, Reply{Success: true})
	case frame.Type == frameJoin:
		h.handleJoin(ctx, s, frame)
	case frame.Type == frameLeave:
		h.handleLeave(ctx, s, frame)
	case strings.HasPrefix(frame.Type, movePrefix):
		h.handleMove(ctx, s, frame)
	default:
		h.reply(s, frame.Type, frame.RequestID, transportError(codeUnsupportedFrame, "unsupported frame type"))
	}
}

func (h *Hub) handleAuthenticate(ctx context.Context, s *session, frame Frame) {
	var payload authenticatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		h.reply(s, frame.Type, frame.RequestID, transportError(codeInvalidFrame, "invalid authenticate payload"))
		return
	}
	user, err := h.auth.Authenticate(ctx, strings.TrimSpace(payload.Token))
	if err != nil {
		h.reply(s, frame.Type, frame.RequestID, errorReply(err))
		return
	}
	if current := s.currentUser(); current != nil && current.ID != user.ID {
		h.leaveAll(ctx, s)
	}
	summary := user.Summary()
	s.setUser(&summary)
	h.reply(s, frame.Type, frame.RequestID, Reply{Success: true, Data: summary})
}

func (h *Hub) handleJoin(ctx context.Context, s *session, frame Frame) {
	user, roomID, ok := h.roomCommand(ctx, s, frame)
	if !ok {
		return
	}
	if s.inRoom(roomID) {
		h.reply(s, frame.Type, frame.RequestID, Reply{Success: true})
		return
	}
	if err := h.joinRoom(ctx, roomID, s); err != nil {
		h.logger.WithError(err).WithField("room", roomID).Error("join room")
		h.reply(s, frame.Type, frame.RequestID, errorReply(apperrors.Wrap(apperrors.CodePersistenceUnavailable, "room fan-out unavailable", err)))
		return
	}
	h.reply(s, frame.Type, frame.RequestID, Reply{Success: true})
	h.broadcast(ctx, roomID, "", frameJoin, Presence{Project: roomID, User: user})
}

func (h *Hub) handleLeave(ctx context.Context, s *session, frame Frame) {
	user, roomID, ok := h.roomCommand(ctx, s, frame)
	if !ok {
		return
	}
	if !s.inRoom(roomID) {
		h.reply(s, frame.Type, frame.RequestID, Reply{Success: true})
		return
	}
	h.leaveRoom(roomID, s)
	h.reply(s, frame.Type, frame.RequestID, Reply{Success: true})
	h.broadcast(ctx, roomID, s.id, frameLeave, Presence{Project: roomID, User: user})
}

// roomCommand decodes a join or leave frame and checks membership.
func (h *Hub) roomCommand(ctx context.Context, s *session, frame Frame) (*domain.UserSummary, string, bool) {
	user := s.currentUser()
	if user == nil {
		h.reply(s, frame.Type, frame.RequestID, errorReply(errNotAuthenticated))
		return nil, "", false
	}
	var payload roomPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		h.reply(s, frame.Type, frame.RequestID, transportError(codeInvalidFrame, "invalid room payload"))
		return nil, "", false
	}
	roomID := strings.TrimSpace(payload.ID)
	if _, err := h.gate.RequireAnyParticipant(ctx, roomID, user.ID); err != nil {
		h.reply(s, frame.Type, frame.RequestID, errorReply(err))
		return nil, "", false
	}
	return user, roomID, true
}

func (h *Hub) handleMove(ctx context.Context, s *session, frame Frame) {
	user := s.currentUser()
	if user == nil {
		h.reply(s, frame.Type, frame.RequestID, errorReply(errNotAuthenticated))
		return
	}
	objectType := domain.ObjectType(strings.TrimPrefix(frame.Type, movePrefix))
	switch objectType {
	case domain.ObjectAnnotation, domain.ObjectMilestone, domain.ObjectTask:
	default:
		h.reply(s, frame.Type, frame.RequestID, transportError(codeUnsupportedFrame, "unsupported move target"))
		return
	}
	var payload movePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		h.reply(s, frame.Type, frame.RequestID, errorReply(domain.ErrInvalidDate))
		return
	}
	moved, err := h.mover.Move(ctx, objectType, strings.TrimSpace(payload.ID), user.ID, domain.MoveInput{
		Start:   payload.Start,
		End:     payload.End,
		Version: payload.Version,
	})
	if err != nil {
		h.reply(s, frame.Type, frame.RequestID, errorReply(err))
		return
	}
	h.reply(s, frame.Type, frame.RequestID, Reply{Success: true, Data: moved})
}

// reply writes an acknowledgement to the originating connection only.
func (h *Hub) reply(s *session, frameType, requestID string, reply Reply) {
	frame, err := encodeFrame(frameType, requestID, reply)
	if err != nil {
		h.logger.WithError(err).WithField("frame", frameType).Error("encode reply")
		return
	}
	if err := s.peer.write(frame); err != nil {
		h.logger.WithError(err).WithField("session_id", s.id).Debug("write reply")
	}
}
