package social

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Supported provider names.
const (
	Google   = "google"
	Facebook = "facebook"
	LinkedIn = "linkedin"
)

// Config holds social login credentials. A provider without a client id is
// disabled.
type Config struct {
	// CallbackBase is the public URL prefix of the callback routes, for
	// example https://timeliner.example.com/api/auth/social.
	CallbackBase string        `env:"TIMELINER_SOCIAL_CALLBACK_BASE"`
	StateTTL     time.Duration `env:"TIMELINER_SOCIAL_STATE_TTL" envDefault:"10m"`
	// RedirectAllowlist lists the client URLs a finished login may return to.
	RedirectAllowlist []string `env:"TIMELINER_SOCIAL_REDIRECTS" envSeparator:","`

	GoogleClientID       string `env:"TIMELINER_GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"TIMELINER_GOOGLE_CLIENT_SECRET"`
	FacebookClientID     string `env:"TIMELINER_FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `env:"TIMELINER_FACEBOOK_CLIENT_SECRET"`
	LinkedInClientID     string `env:"TIMELINER_LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `env:"TIMELINER_LINKEDIN_CLIENT_SECRET"`
}

// ProviderConfig describes one OAuth2 identity provider.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Scopes       []string
}

// Providers expands cfg into the enabled provider configurations.
func (c Config) Providers() []ProviderConfig {
	var providers []ProviderConfig
	add := func(name, clientID, secret string, endpoint oauth2.Endpoint, profileURL string, scopes ...string) {
		if strings.TrimSpace(clientID) == "" {
			return
		}
		providers = append(providers, ProviderConfig{
			Name:         name,
			ClientID:     clientID,
			ClientSecret: secret,
			AuthURL:      endpoint.AuthURL,
			TokenURL:     endpoint.TokenURL,
			ProfileURL:   profileURL,
			Scopes:       scopes,
		})
	}
	add(Google, c.GoogleClientID, c.GoogleClientSecret, endpoints.Google,
		"https://openidconnect.googleapis.com/v1/userinfo", "openid", "email", "profile")
	add(Facebook, c.FacebookClientID, c.FacebookClientSecret, endpoints.Facebook,
		"https://graph.facebook.com/me?fields=id,email,first_name,middle_name,last_name", "email", "public_profile")
	add(LinkedIn, c.LinkedInClientID, c.LinkedInClientSecret, endpoints.LinkedIn,
		"https://api.linkedin.com/v2/userinfo", "openid", "email", "profile")
	return providers
}

func (p ProviderConfig) oauth2Config(callbackBase string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
		RedirectURL: strings.TrimRight(callbackBase, "/") + "/" + p.Name + "/callback",
		Scopes:      p.Scopes,
	}
}
