// Package social implements the OAuth2 authorization code flow against the
// supported identity providers and normalizes their profiles.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/platform/id"
	"github.com/learning-layers/Timeliner/internal/platform/logging"
	"github.com/learning-layers/Timeliner/internal/platform/timeouts"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

const maxProfileBytes = 1 << 20

var (
	errUnknownProvider = apperrors.New(apperrors.CodeNotFound, "unknown social provider")
	errStateMismatch   = apperrors.New(apperrors.CodeSocialStateMismatch, "unknown or expired login state")
	errRedirectDenied  = apperrors.New(apperrors.CodeUnknownValue, "redirect is not allowed")
)

// Profile is the normalized identity returned by a provider.
type Profile struct {
	Provider string
	Subject  string
	Email    string
	Name     domain.Name
}

type provider struct {
	config     ProviderConfig
	oauth      *oauth2.Config
	profileURL string
}

// Login runs social login flows.
type Login struct {
	providers map[string]provider
	states    *stateStore
	ttl       time.Duration
	redirects []string
	now       func() time.Time
	logger    logrus.FieldLogger
}

// NewLogin builds a Login for the given providers.
func NewLogin(cfg Config, providers []ProviderConfig, now func() time.Time, logger logrus.FieldLogger) *Login {
	if now == nil {
		now = time.Now
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	login := &Login{
		providers: make(map[string]provider, len(providers)),
		states:    newStateStore(),
		ttl:       ttl,
		redirects: cfg.RedirectAllowlist,
		now:       now,
		logger:    logging.Component(logger, "social"),
	}
	for _, p := range providers {
		login.providers[p.Name] = provider{config: p, oauth: p.oauth2Config(cfg.CallbackBase), profileURL: p.ProfileURL}
	}
	return login
}

// Enabled lists the configured provider names.
func (l *Login) Enabled() []string {
	names := make([]string, 0, len(l.providers))
	for name := range l.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start returns the provider authorization URL for a new login. redirect is
// where the client wants to land afterwards and must be allowlisted.
func (l *Login) Start(providerName, redirect string) (string, error) {
	p, ok := l.providers[providerName]
	if !ok {
		return "", errUnknownProvider
	}
	redirect = strings.TrimSpace(redirect)
	if redirect != "" && !slices.Contains(l.redirects, redirect) {
		return "", errRedirectDenied
	}
	key, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("new state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	l.states.put(key, pendingState{
		provider:  providerName,
		verifier:  verifier,
		redirect:  redirect,
		expiresAt: l.now().Add(l.ttl),
	}, l.now())
	return p.oauth.AuthCodeURL(key, oauth2.S256ChallengeOption(verifier)), nil
}

// Complete validates the callback state, exchanges the code and fetches the
// user's profile. It also returns the redirect recorded by Start.
func (l *Login) Complete(ctx context.Context, providerName, state, code string) (Profile, string, error) {
	p, ok := l.providers[providerName]
	if !ok {
		return Profile{}, "", errUnknownProvider
	}
	pending, ok := l.states.take(state, l.now())
	if !ok || pending.provider != providerName {
		return Profile{}, "", errStateMismatch
	}
	if strings.TrimSpace(code) == "" {
		return Profile{}, "", apperrors.New(apperrors.CodeRequiredParameterMissing, "code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.OAuthExchange)
	defer cancel()

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		l.logger.WithError(err).WithField("provider", providerName).Warn("code exchange failed")
		return Profile{}, "", apperrors.Wrap(apperrors.CodeAuthenticationFailed, "code exchange failed", err)
	}
	profile, err := l.fetchProfile(ctx, p, token)
	if err != nil {
		l.logger.WithError(err).WithField("provider", providerName).Warn("profile fetch failed")
		return Profile{}, "", apperrors.Wrap(apperrors.CodeAuthenticationFailed, "profile fetch failed", err)
	}
	return profile, pending.redirect, nil
}

func (l *Login) fetchProfile(ctx context.Context, p provider, token *oauth2.Token) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("profile request returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return Profile{}, err
	}
	profile, err := decodeProfile(p.config.Name, body)
	if err != nil {
		return Profile{}, err
	}
	if profile.Subject == "" {
		return Profile{}, fmt.Errorf("profile without subject")
	}
	return profile, nil
}

// decodeProfile reads a Facebook Graph profile or an OpenID Connect userinfo
// document.
func decodeProfile(providerName string, body []byte) (Profile, error) {
	if providerName == Facebook {
		var payload struct {
			ID         string `json:"id"`
			Email      string `json:"email"`
			FirstName  string `json:"first_name"`
			MiddleName string `json:"middle_name"`
			LastName   string `json:"last_name"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return Profile{}, err
		}
		return Profile{
			Provider: providerName,
			Subject:  payload.ID,
			Email:    payload.Email,
			Name:     domain.Name{First: payload.FirstName, Middle: payload.MiddleName, Last: payload.LastName},
		}, nil
	}

	var payload struct {
		Sub        string `json:"sub"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Profile{}, err
	}
	return Profile{
		Provider: providerName,
		Subject:  payload.Sub,
		Email:    payload.Email,
		Name:     domain.Name{First: payload.GivenName, Last: payload.FamilyName},
	}, nil
}
