package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/linkside/gateway/ports"
)

const githubUserURL = "https://api.github.com/user"

// GitHubProvider validates GitHub access tokens by fetching the
// authenticated user. GitHub has no introspection endpoint; a token
// that can read its own user is live.
type GitHubProvider struct {
	baseURL    string
	httpClient *http.Client
}

// GitHubOption customizes a GitHubProvider.
type GitHubOption func(*GitHubProvider)

// WithGitHubBaseURL overrides the user endpoint (for testing).
func WithGitHubBaseURL(u string) GitHubOption {
	return func(p *GitHubProvider) { p.baseURL = u }
}

// NewGitHubProvider creates a GitHub token introspection provider.
func NewGitHubProvider(opts ...GitHubOption) *GitHubProvider {
	p := &GitHubProvider{
		baseURL:    githubUserURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider key.
func (p *GitHubProvider) Name() string {
	return "github"
}

// Introspect validates an access token. 401 means the token is bad,
// not that the call failed.
func (p *GitHubProvider) Introspect(ctx context.Context, token string) (ports.OAuthValidation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("user request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("read user response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ports.OAuthValidation{Valid: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return ports.OAuthValidation{}, fmt.Errorf("user status %d", resp.StatusCode)
	}

	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("parse user response: %w", err)
	}

	return ports.OAuthValidation{
		Valid:   user.ID != 0,
		Subject: strconv.FormatInt(user.ID, 10),
		Email:   user.Email,
	}, nil
}

// Ensure interface compliance.
var _ ports.OAuthProvider = (*GitHubProvider)(nil)
