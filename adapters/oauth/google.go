// Package oauth provides OAuth provider implementations for token
// introspection.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/linkside/gateway/ports"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleProvider validates Google access tokens against the tokeninfo
// endpoint.
type GoogleProvider struct {
	baseURL    string
	httpClient *http.Client
}

// GoogleOption customizes a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleBaseURL overrides the introspection endpoint (for testing).
func WithGoogleBaseURL(u string) GoogleOption {
	return func(p *GoogleProvider) { p.baseURL = u }
}

// NewGoogleProvider creates a Google token introspection provider.
func NewGoogleProvider(opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		baseURL:    googleTokenInfoURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider key.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Introspect validates an access token. A 4xx from tokeninfo means the
// token is bad, not that the call failed.
func (p *GoogleProvider) Introspect(ctx context.Context, token string) (ports.OAuthValidation, error) {
	u := p.baseURL + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("create tokeninfo request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("read tokeninfo response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return ports.OAuthValidation{Valid: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return ports.OAuthValidation{}, fmt.Errorf("tokeninfo status %d", resp.StatusCode)
	}

	var info struct {
		Sub       string `json:"sub"`
		Email     string `json:"email"`
		ExpiresIn string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("parse tokeninfo response: %w", err)
	}

	v := ports.OAuthValidation{
		Valid:   info.Sub != "",
		Subject: info.Sub,
		Email:   info.Email,
	}
	if secs, err := strconv.Atoi(info.ExpiresIn); err == nil && secs > 0 {
		exp := time.Now().Add(time.Duration(secs) * time.Second)
		v.ExpiresAt = &exp
	}
	return v, nil
}

// Ensure interface compliance.
var _ ports.OAuthProvider = (*GoogleProvider)(nil)
