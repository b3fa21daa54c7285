package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultRevokeURL   = "https://oauth2.googleapis.com/revoke"
	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	// Scopes: drive file access, docs editing, and identity.
	oauthScopes = "https://www.googleapis.com/auth/drive https://www.googleapis.com/auth/documents openid email profile"
)

// Provider drives the OAuth consent and token lifecycle against Google's
// endpoints. Endpoint URLs are overridable for tests.
type Provider struct {
	clientID     string
	clientSecret string
	redirectURI  string

	authURL     string
	tokenURL    string
	revokeURL   string
	userInfoURL string

	http *resty.Client
	now  func() time.Time
}

type Option func(*Provider)

// WithEndpoints overrides the upstream URLs, used by tests.
func WithEndpoints(authURL, tokenURL, revokeURL, userInfoURL string) Option {
	return func(p *Provider) {
		p.authURL = authURL
		p.tokenURL = tokenURL
		p.revokeURL = revokeURL
		p.userInfoURL = userInfoURL
	}
}

func New(clientID, clientSecret, redirectURI string, opts ...Option) *Provider {
	client := resty.New()
	client.SetTimeout(15 * time.Second)

	p := &Provider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		authURL:      defaultAuthURL,
		tokenURL:     defaultTokenURL,
		revokeURL:    defaultRevokeURL,
		userInfoURL:  defaultUserInfoURL,
		http:         client,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) AuthCodeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", p.clientID)
	params.Set("redirect_uri", p.redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", oauthScopes)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	params.Set("state", state)
	return p.authURL + "?" + params.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

type userInfoResponse struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (p *Provider) Exchange(ctx context.Context, code string) (*domain.GoogleToken, *domain.UserInfo, error) {
	var tr tokenResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     p.clientID,
			"client_secret": p.clientSecret,
			"redirect_uri":  p.redirectURI,
			"grant_type":    "authorization_code",
			"code":          code,
		}).
		SetResult(&tr).
		Post(p.tokenURL)
	if err := mapOAuthError("exchange code", resp, err); err != nil {
		return nil, nil, err
	}

	var ui userInfoResponse
	resp, err = p.http.R().
		SetContext(ctx).
		SetAuthToken(tr.AccessToken).
		SetResult(&ui).
		Get(p.userInfoURL)
	if err := mapOAuthError("fetch user info", resp, err); err != nil {
		return nil, nil, err
	}
	if ui.Sub == "" {
		return nil, nil, domain.WrapError(domain.ErrUnauthorized, "fetch user info", fmt.Errorf("empty subject"))
	}

	now := p.now().UTC()
	token := &domain.GoogleToken{
		UserID:       ui.Sub,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Expiry:       now.Add(time.Duration(tr.ExpiresIn) * time.Second),
		Scope:        tr.Scope,
		UpdatedAt:    now,
	}
	info := &domain.UserInfo{UserID: ui.Sub, Email: ui.Email, Name: ui.Name}
	return token, info, nil
}

// Refresh trades the refresh token for a new access token. Google does
// not rotate refresh tokens on this path, so the old one is kept.
func (p *Provider) Refresh(ctx context.Context, token domain.GoogleToken) (*domain.GoogleToken, error) {
	if strings.TrimSpace(token.RefreshToken) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "refresh token", fmt.Errorf("no refresh token on grant"))
	}

	var tr tokenResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     p.clientID,
			"client_secret": p.clientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": token.RefreshToken,
		}).
		SetResult(&tr).
		Post(p.tokenURL)
	if err := mapOAuthError("refresh token", resp, err); err != nil {
		return nil, err
	}

	now := p.now().UTC()
	refreshed := token
	refreshed.AccessToken = tr.AccessToken
	refreshed.Expiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	refreshed.UpdatedAt = now
	if tr.RefreshToken != "" {
		refreshed.RefreshToken = tr.RefreshToken
	}
	if tr.Scope != "" {
		refreshed.Scope = tr.Scope
	}
	return &refreshed, nil
}

func (p *Provider) Revoke(ctx context.Context, token domain.GoogleToken) error {
	resp, err := p.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"token": token.RefreshToken}).
		Post(p.revokeURL)
	return mapOAuthError("revoke token", resp, err)
}

func mapOAuthError(operation string, resp *resty.Response, err error) error {
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	if resp == nil {
		return domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("empty response"))
	}

	status := resp.StatusCode()
	if status < 300 {
		return nil
	}

	detail := fmt.Errorf("status %d: %s", status, strings.TrimSpace(resp.String()))
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.WrapError(domain.ErrTemporary, operation, detail)
	default:
		// 4xx from the token endpoint means the grant is no longer good.
		return domain.WrapError(domain.ErrUnauthorized, operation, detail)
	}
}
