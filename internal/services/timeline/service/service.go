// Package service implements the timeline operations: membership checks,
// validation, persistence and event publication.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/platform/id"
	"github.com/learning-layers/Timeliner/internal/platform/logging"
	platformotel "github.com/learning-layers/Timeliner/internal/platform/otel"
	"github.com/learning-layers/Timeliner/internal/services/timeline/blob"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
	"github.com/learning-layers/Timeliner/internal/services/timeline/gate"
	"github.com/learning-layers/Timeliner/internal/services/timeline/identity"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

const tracerName = "github.com/learning-layers/Timeliner/internal/services/timeline/service"

// DefaultConfirmationTTL is how long a registration key stays valid.
const DefaultConfirmationTTL = 48 * time.Hour

// Publisher receives domain events after successful writes.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event)
}

// Options wires the service dependencies.
type Options struct {
	Store           storage.Store
	Blobs           blob.Store
	Events          Publisher
	Tokens          *identity.Tokens
	Logger          logrus.FieldLogger
	Now             func() time.Time
	IDGenerator     func() (string, error)
	ConfirmationTTL time.Duration
}

// Service is the timeline application layer shared by HTTP handlers and
// the realtime hub.
type Service struct {
	store           storage.Store
	gate            *gate.Gate
	blobs           blob.Store
	events          Publisher
	tokens          *identity.Tokens
	logger          logrus.FieldLogger
	tracer          trace.Tracer
	now             func() time.Time
	newID           func() (string, error)
	confirmationTTL time.Duration
}

// New validates opts and builds a service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("timeline store is required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if opts.Events == nil {
		opts.Events = event.NewBus(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = id.NewID
	}
	if opts.ConfirmationTTL <= 0 {
		opts.ConfirmationTTL = DefaultConfirmationTTL
	}
	return &Service{
		store:           opts.Store,
		gate:            gate.New(opts.Store),
		blobs:           opts.Blobs,
		events:          opts.Events,
		tokens:          opts.Tokens,
		logger:          logging.Component(opts.Logger, "timeline"),
		tracer:          platformotel.Tracer(tracerName),
		now:             opts.Now,
		newID:           opts.IDGenerator,
		confirmationTTL: opts.ConfirmationTTL,
	}, nil
}

// Gate exposes the membership checks used by the realtime hub.
func (s *Service) Gate() *gate.Gate {
	return s.gate
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "timeline."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on span before ending it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) publish(ctx context.Context, action event.Action, objectType domain.ObjectType, data domain.Record, actorID string) {
	s.events.Publish(ctx, event.Event{Action: action, ObjectType: objectType, Data: data, ActorID: actorID})
}

// storeErr maps storage sentinels onto domain errors. notFound replaces
// storage.ErrNotFound when set.
func storeErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		if notFound != nil {
			return notFound
		}
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrVersionConflict):
		return domain.ErrVersionConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case apperrors.CodeOf(err) != apperrors.CodeUnknown:
		return err
	default:
		return apperrors.Wrap(apperrors.CodePersistenceUnavailable, "timeline store unavailable", err)
	}
}

// checkVersion rejects a write based on a version other than current.
func checkVersion(expected *int64, current int64) error {
	if expected != nil && *expected != current {
		return domain.ErrVersionConflict
	}
	return nil
}

// checkProject rejects entities addressed through another project.
func checkProject(record domain.Record, projectID string) error {
	if record.RecordProject() != projectID {
		return domain.ErrPermission
	}
	return nil
}

// summaries loads user summaries for ids, skipping unknown users.
func (s *Service) summaries(ctx context.Context, ids ...string) (map[string]*domain.UserSummary, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, userID := range ids {
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		unique = append(unique, userID)
	}
	users, err := s.store.GetUsers(ctx, unique)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	out := make(map[string]*domain.UserSummary, len(users))
	for userID, user := range users {
		summary := user.Summary()
		out[userID] = &summary
	}
	return out, nil
}

// putBlob stores content best-effort. A failure is logged and dropped.
func (s *Service) putBlob(ctx context.Context, key string, content io.Reader) {
	if content == nil {
		return
	}
	if err := s.blobs.Put(ctx, key, content); err != nil {
		s.logger.WithError(err).WithField("blob_key", key).Error("store uploaded file")
	}
}

// removeBlob deletes key best-effort. A failure is logged and dropped.
func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Remove(ctx, key); err != nil {
		s.logger.WithError(err).WithField("blob_key", key).Warn("remove stored file")
	}
}
