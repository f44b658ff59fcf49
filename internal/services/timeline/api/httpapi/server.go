// Package httpapi exposes the timeline service over JSON HTTP routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/learning-layers/Timeliner/internal/platform/logging"
	"github.com/learning-layers/Timeliner/internal/platform/requestctx"
	"github.com/learning-layers/Timeliner/internal/services/timeline/service"
	"github.com/learning-layers/Timeliner/internal/services/timeline/social"
)

const (
	defaultMaxUploadBytes = 32 << 20
	maxJSONBodyBytes      = 1 << 20
)

// Options wires the HTTP API.
type Options struct {
	Service *service.Service
	// Social is optional; without it the social routes answer 404.
	Social *social.Login
	// Realtime serves the websocket endpoint at /ws when set.
	Realtime       http.Handler
	MaxUploadBytes int64
	Logger         logrus.FieldLogger
}

type handler struct {
	svc       *service.Service
	social    *social.Login
	maxUpload int64
	logger    logrus.FieldLogger
}

// NewHandler builds the router.
func NewHandler(opts Options) http.Handler {
	h := &handler{
		svc:       opts.Service,
		social:    opts.Social,
		maxUpload: opts.MaxUploadBytes,
		logger:    logging.Component(opts.Logger, "http"),
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUploadBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Realtime != nil {
		r.Handle("/ws", opts.Realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Get("/confirm/{key}", h.getRegistration)
			r.Post("/confirm", h.confirm)
			r.Post("/login", h.login)
			r.Get("/social", h.socialProviders)
			r.Get("/social/{provider}/start", h.socialStart)
			r.Get("/social/{provider}/callback", h.socialCallback)
			r.With(h.authenticate).Get("/me", h.me)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/users", h.listUsers)
			r.Get("/users/search", h.searchUsers)
			r.Put("/users/{user}/manage/admin", h.setAdmin)

			r.Get("/download/resources/{resource}", h.downloadResource)
			r.Get("/download/outcomes/{outcome}/versions/{version}", h.downloadOutcome)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", h.listAllProjects)
				r.Get("/mine", h.listMyProjects)
				r.Post("/", h.createProject)

				r.Route("/{project}", func(r chi.Router) {
					r.Get("/", h.getProject)
					r.Put("/", h.updateProject)
					r.Delete("/", h.deleteProject)
					r.Post("/timeline/{visibility}", h.setTimelineVisibility)

					r.Post("/participants/invite/{user}", h.invite)
					r.Post("/participants/remove/{user}", h.removeParticipant)
					r.Post("/participants/{action}", h.participantAction)

					r.Get("/annotations", h.listAnnotations)
					r.Post("/annotations", h.createAnnotation)
					r.Put("/annotations/{id}", h.updateAnnotation)
					r.Delete("/annotations/{id}", h.deleteAnnotation)

					r.Get("/milestones", h.listMilestones)
					r.Post("/milestones", h.createMilestone)
					r.Put("/milestones/{id}", h.updateMilestone)
					r.Delete("/milestones/{id}", h.deleteMilestone)

					r.Get("/tasks", h.listTasks)
					r.Post("/tasks", h.createTask)
					r.Put("/tasks/{id}", h.updateTask)
					r.Delete("/tasks/{id}", h.deleteTask)
					r.Post("/tasks/{id}/{kind}/{ref}", h.attach)
					r.Delete("/tasks/{id}/{kind}/{ref}", h.detach)

					r.Get("/resources", h.listResources)
					r.Post("/resources", h.createResource)
					r.Put("/resources/{id}", h.updateResource)
					r.Delete("/resources/{id}", h.deleteResource)

					r.Get("/outcomes", h.listOutcomes)
					r.Post("/outcomes", h.createOutcome)
					r.Put("/outcomes/{id}", h.updateOutcome)
					r.Delete("/outcomes/{id}", h.deleteOutcome)

					r.Get("/messages", h.listMessages)
					r.Post("/messages", h.createMessage)
					r.Get("/activities", h.listActivities)
				})
			})
		})
	})
	return r
}

// requestLogger stores a request-scoped entry in the context and logs the
// outcome of each request.
func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		entry := h.logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(requestctx.WithLogger(r.Context(), entry)))
		entry.WithFields(logrus.Fields{
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		}).Debug("request served")
	})
}
