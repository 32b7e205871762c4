package oauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linkside/gateway/adapters/oauth"
)

func TestGoogleIntrospect_ValidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "good-token" {
			t.Errorf("access_token = %q", r.URL.Query().Get("access_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"108","email":"golfer@example.com","expires_in":"3600"}`))
	}))
	defer srv.Close()

	p := oauth.NewGoogleProvider(oauth.WithGoogleBaseURL(srv.URL))

	v, err := p.Introspect(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !v.Valid {
		t.Error("expected valid token")
	}
	if v.Subject != "108" || v.Email != "golfer@example.com" {
		t.Errorf("validation = %+v", v)
	}
	if v.ExpiresAt == nil {
		t.Error("expected expiry from expires_in")
	}
}

func TestGoogleIntrospect_BadTokenIsInvalidNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := oauth.NewGoogleProvider(oauth.WithGoogleBaseURL(srv.URL))

	v, err := p.Introspect(context.Background(), "bad-token")
	if err != nil {
		t.Fatalf("Introspect() error = %v, want invalid result", err)
	}
	if v.Valid {
		t.Error("expected invalid token")
	}
}

func TestGoogleIntrospect_ServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := oauth.NewGoogleProvider(oauth.WithGoogleBaseURL(srv.URL))

	if _, err := p.Introspect(context.Background(), "token"); err == nil {
		t.Error("expected error for 5xx from tokeninfo")
	}
}

func TestGitHubIntrospect_ValidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42,"login":"golfer","email":"golfer@example.com"}`))
	}))
	defer srv.Close()

	p := oauth.NewGitHubProvider(oauth.WithGitHubBaseURL(srv.URL))

	v, err := p.Introspect(context.Background(), "gh-token")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !v.Valid || v.Subject != "42" {
		t.Errorf("validation = %+v", v)
	}
}

func TestGitHubIntrospect_UnauthorizedIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := oauth.NewGitHubProvider(oauth.WithGitHubBaseURL(srv.URL))

	v, err := p.Introspect(context.Background(), "revoked")
	if err != nil {
		t.Fatalf("Introspect() error = %v, want invalid result", err)
	}
	if v.Valid {
		t.Error("expected invalid token")
	}
}

func TestProviderNames(t *testing.T) {
	if got := oauth.NewGoogleProvider().Name(); got != "google" {
		t.Errorf("google name = %q", got)
	}
	if got := oauth.NewGitHubProvider().Name(); got != "github" {
		t.Errorf("github name = %q", got)
	}
}
