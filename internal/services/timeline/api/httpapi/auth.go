package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/platform/requestctx"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/service"
	"github.com/learning-layers/Timeliner/internal/services/timeline/social"
)

var (
	errHeaderMissing    = apperrors.New(apperrors.CodeAuthorizationHeaderMissing, "authorization header is missing")
	errMalformedHeader  = apperrors.New(apperrors.CodeMalformedAuthorization, "authorization header must use the Bearer scheme")
	errSocialNotEnabled = apperrors.New(apperrors.CodeNotFound, "social login is not enabled")
)

// authenticate resolves the bearer token into the acting user. Download
// links may carry the token in the "token" query parameter instead.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		user, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := requestctx.WithUserID(r.Context(), user.ID)
		ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx, h.logger).WithField("user_id", user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/download/") {
			if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
				return token, nil
			}
		}
		return "", errHeaderMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMalformedHeader
	}
	return strings.TrimSpace(token), nil
}

type registerRequest struct {
	Email string `json:"email"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.svc.Register(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, user)
}

func (h *handler) getRegistration(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetRegistration(r.Context(), param(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type confirmRequest struct {
	Key      string      `json:"key"`
	Password string      `json:"password"`
	Name     domain.Name `json:"name"`
}

func (h *handler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.svc.Confirm(r.Context(), req.Key, req.Password, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context(), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (h *handler) socialProviders(w http.ResponseWriter, _ *http.Request) {
	providers := []string{}
	if h.social != nil {
		providers = h.social.Enabled()
	}
	writeData(w, http.StatusOK, providers)
}

func (h *handler) socialStart(w http.ResponseWriter, r *http.Request) {
	if h.social == nil {
		h.writeError(w, r, errSocialNotEnabled)
		return
	}
	authURL, err := h.social.Start(param(r, "provider"), r.URL.Query().Get("redirect"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// socialCallback finishes a provider login. With a stored redirect the
// session token travels in the URL fragment, otherwise it is returned as
// JSON.
func (h *handler) socialCallback(w http.ResponseWriter, r *http.Request) {
	if h.social == nil {
		h.writeError(w, r, errSocialNotEnabled)
		return
	}
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.writeError(w, r, apperrors.New(apperrors.CodeAuthenticationFailed, "provider denied login: "+providerErr))
		return
	}
	profile, redirect, err := h.social.Complete(r.Context(), param(r, "provider"), query.Get("state"), query.Get("code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.svc.SocialLogin(r.Context(), socialProfile(profile))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if redirect != "" {
		http.Redirect(w, r, redirect+"#token="+url.QueryEscape(session.Token), http.StatusFound)
		return
	}
	writeData(w, http.StatusOK, session)
}

func socialProfile(profile social.Profile) service.SocialProfile {
	return service.SocialProfile{
		Provider: profile.Provider,
		Subject:  profile.Subject,
		Email:    profile.Email,
		Name:     profile.Name,
	}
}
