// Package providers configures the external identity providers users can
// authenticate with.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"

	"github.com/tbranch/accountlink/internal/auth/profile"
	"github.com/tbranch/accountlink/internal/auth/user"
)

var (
	facebookEndpoint = oauth2.Endpoint{
		AuthURL:  "https://www.facebook.com/v3.2/dialog/oauth",
		TokenURL: "https://graph.facebook.com/v3.2/oauth/access_token",
	}
	googleEndpoint = oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
	twitterEndpoint = oauth2.Endpoint{
		AuthURL:  "https://twitter.com/i/oauth2/authorize",
		TokenURL: "https://api.twitter.com/2/oauth2/token",
	}
)

// Provider is one configured identity provider.
type Provider struct {
	Name        user.Provider
	OAuth       *oauth2.Config
	UserInfoURL string
}

// Registry holds every provider with complete credentials.
type Registry struct {
	providers map[user.Provider]*Provider
}

type providerEnv struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	UserInfoURL  string   `env:"USERINFO_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

type providerDefaults struct {
	endpoint    oauth2.Endpoint
	userInfoURL string
	scopes      []string
}

var defaults = map[user.Provider]providerDefaults{
	user.ProviderFacebook: {
		endpoint:    facebookEndpoint,
		userInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
		scopes:      []string{"email"},
	},
	user.ProviderGoogle: {
		endpoint:    googleEndpoint,
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		scopes:      []string{"openid", "email", "profile"},
	},
	user.ProviderTwitter: {
		endpoint:    twitterEndpoint,
		userInfoURL: "https://api.twitter.com/2/users/me",
		scopes:      []string{"users.read", "tweet.read"},
	},
}

// LoadRegistry reads provider credentials from the environment.
//
// A provider is configured only when both client id and secret are set
// under ACCOUNTLINK_<PROVIDER>_*. Endpoint URLs default per provider and
// can be overridden for testing.
func LoadRegistry() (*Registry, error) {
	registry := &Registry{providers: make(map[user.Provider]*Provider)}
	for _, name := range []user.Provider{user.ProviderFacebook, user.ProviderGoogle, user.ProviderTwitter} {
		prefix := fmt.Sprintf("ACCOUNTLINK_%s_", strings.ToUpper(string(name)))
		cfg, err := env.ParseAsWithOptions[providerEnv](env.Options{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("parse %s provider env: %w", name, err)
		}
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			continue
		}

		def := defaults[name]
		endpoint := def.endpoint
		if cfg.AuthURL != "" {
			endpoint.AuthURL = cfg.AuthURL
		}
		if cfg.TokenURL != "" {
			endpoint.TokenURL = cfg.TokenURL
		}
		userInfoURL := def.userInfoURL
		if cfg.UserInfoURL != "" {
			userInfoURL = cfg.UserInfoURL
		}
		scopes := def.scopes
		if len(cfg.Scopes) > 0 {
			scopes = cfg.Scopes
		}

		registry.providers[name] = &Provider{
			Name: name,
			OAuth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Endpoint:     endpoint,
				Scopes:       scopes,
			},
			UserInfoURL: userInfoURL,
		}
	}
	return registry, nil
}

// NewRegistry builds a registry from explicit providers, for tests and
// embedded setups.
func NewRegistry(providers ...*Provider) *Registry {
	registry := &Registry{providers: make(map[user.Provider]*Provider, len(providers))}
	for _, p := range providers {
		registry.providers[p.Name] = p
	}
	return registry
}

// Get returns the provider configured under name.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.providers[user.Provider(name)]
	return p, ok
}

// Configured lists configured provider names in stable order.
func (r *Registry) Configured() []user.Provider {
	names := make([]user.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// userInfo covers the profile fields the supported providers return.
type userInfo struct {
	ID     string `json:"id"`
	Sub    string `json:"sub"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Emails []struct {
		Value string `json:"value"`
		Type  string `json:"type"`
	} `json:"emails"`
	Data struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// FetchProfile retrieves the provider profile for an exchanged token and
// returns both the normalized raw shape and the verbatim response body.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (profile.Raw, string, error) {
	client := p.OAuth.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return profile.Raw{}, "", fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return profile.Raw{}, "", fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return profile.Raw{}, "", fmt.Errorf("read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return profile.Raw{}, "", fmt.Errorf("userinfo responded %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return profile.Raw{}, "", fmt.Errorf("decode userinfo response: %w", err)
	}

	raw := profile.Raw{
		SubjectID:   firstNonEmpty(info.Sub, info.ID, info.Data.ID),
		DisplayName: firstNonEmpty(info.Name, info.Data.Name),
	}
	for _, entry := range info.Emails {
		raw.Emails = append(raw.Emails, profile.EmailEntry{Value: entry.Value, Type: entry.Type})
	}
	if len(raw.Emails) == 0 && info.Email != "" {
		raw.Emails = append(raw.Emails, profile.EmailEntry{Value: info.Email})
	}
	if raw.SubjectID == "" {
		return profile.Raw{}, "", fmt.Errorf("userinfo response carries no subject id")
	}
	return raw, string(body), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
