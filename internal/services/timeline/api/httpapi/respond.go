package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/platform/requestctx"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	body := errorBody{Code: string(code), Message: err.Error()}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Metadata = appErr.Metadata
	}
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		requestctx.Logger(r.Context(), h.logger).WithError(err).WithField("code", code).Error("request failed")
	}
	if code == apperrors.CodeUnknown {
		body = errorBody{Code: string(code), Message: "internal error"}
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

// decodeJSON reads a bounded JSON body into target. Unparseable timestamps
// surface as INVALID_DATE.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *time.ParseError
		if errors.As(err, &parseErr) {
			return domain.ErrInvalidDate
		}
		return apperrors.Wrap(apperrors.CodeUnknownValue, "malformed request body", err)
	}
	return nil
}

func actorID(r *http.Request) string {
	return requestctx.UserIDFromContext(r.Context())
}

func param(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

// cursorFromQuery reads "before" (or its alias "lastCreated") and "limit".
func cursorFromQuery(r *http.Request) (storage.Cursor, error) {
	query := r.URL.Query()
	var cursor storage.Cursor
	before := strings.TrimSpace(query.Get("before"))
	if before == "" {
		before = strings.TrimSpace(query.Get("lastCreated"))
	}
	if before != "" {
		parsed, err := parseTimestamp(before)
		if err != nil {
			return storage.Cursor{}, err
		}
		cursor.Before = &parsed
		cursor.BeforeID = strings.TrimSpace(query.Get("beforeId"))
		if cursor.BeforeID == "" {
			cursor.BeforeID = strings.TrimSpace(query.Get("lastId"))
		}
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return storage.Cursor{}, apperrors.New(apperrors.CodeUnknownValue, "limit must be a non-negative integer")
		}
		cursor.Limit = limit
	}
	return cursor, nil
}

// parseTimestamp accepts RFC 3339 or unix milliseconds.
func parseTimestamp(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC(), nil
	}
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}
	return time.Time{}, domain.ErrInvalidDate
}

// respond writes value as data with status, or err as an error envelope.
func (h *handler) respond(w http.ResponseWriter, r *http.Request, status int, value any, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, status, value)
}
