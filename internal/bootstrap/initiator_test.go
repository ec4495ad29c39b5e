package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/inflect/internal/model"
)

type mockOAuthStarter struct {
	calls             int
	signInWithOAuthFn func(ctx context.Context, provider, redirectTo string) (*model.OAuthRedirect, error)
}

func (m *mockOAuthStarter) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (*model.OAuthRedirect, error) {
	m.calls++
	if m.signInWithOAuthFn != nil {
		return m.signInWithOAuthFn(ctx, provider, redirectTo)
	}
	return &model.OAuthRedirect{URL: "https://accounts.google.com/o/oauth2/v2/auth"}, nil
}

func TestCallbackTarget(t *testing.T) {
	tests := []struct {
		origin  string
		want    string
		wantErr bool
	}{
		{"http://localhost:3000", "http://localhost:3000/auth/callback", false},
		{"https://preview--3000--abc.webcontainer.io", "https://preview--3000--abc.webcontainer.io/auth/callback", false},
		{"https://example.com/", "https://example.com/auth/callback", false},
		{"", "", true},
		{"null", "", true},
		{"ftp://example.com", "", true},
		{"https://example.com/path", "", true},
		{"://bad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			got, err := CallbackTarget(tt.origin)
			if tt.wantErr {
				if !errors.Is(err, ErrOriginUnknown) {
					t.Fatalf("expected ErrOriginUnknown, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CallbackTarget(%q) = %q, want %q", tt.origin, got, tt.want)
			}
		})
	}
}

func TestRequestOrigin(t *testing.T) {
	t.Run("plain http", func(t *testing.T) {
		r := httptest.NewRequest("POST", "http://app.example.com/auth/login/google", nil)
		if got := RequestOrigin(r, false); got != "http://app.example.com" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("tls", func(t *testing.T) {
		r := httptest.NewRequest("POST", "https://app.example.com/auth/login/google", nil)
		r.TLS = &tls.ConnectionState{}
		if got := RequestOrigin(r, false); got != "https://app.example.com" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("forwarded headers ignored unless trusted", func(t *testing.T) {
		r := httptest.NewRequest("POST", "http://internal:8080/auth/login/google", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		r.Header.Set("X-Forwarded-Host", "public.example.com")
		if got := RequestOrigin(r, false); got != "http://internal:8080" {
			t.Errorf("untrusted: got %q", got)
		}
		if got := RequestOrigin(r, true); got != "https://public.example.com" {
			t.Errorf("trusted: got %q", got)
		}
	})

	t.Run("first forwarded value wins", func(t *testing.T) {
		r := httptest.NewRequest("POST", "http://internal/auth/login/google", nil)
		r.Header.Set("X-Forwarded-Proto", "https, http")
		r.Header.Set("X-Forwarded-Host", "a.example.com, b.example.com")
		if got := RequestOrigin(r, true); got != "https://a.example.com" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("missing host", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/login/google", nil)
		r.Host = ""
		if got := RequestOrigin(r, false); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}

func TestLoginInitiator_Start_PassesCallbackTarget(t *testing.T) {
	starter := &mockOAuthStarter{
		signInWithOAuthFn: func(_ context.Context, provider, redirectTo string) (*model.OAuthRedirect, error) {
			if provider != "google" {
				t.Errorf("provider = %q, want google", provider)
			}
			if redirectTo != "https://app.example.com/auth/callback" {
				t.Errorf("redirectTo = %q", redirectTo)
			}
			return &model.OAuthRedirect{URL: "https://accounts.google.com/x", State: "st"}, nil
		},
	}

	redirect, err := NewLoginInitiator(starter).Start(context.Background(), "google", "https://app.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if redirect.URL != "https://accounts.google.com/x" {
		t.Errorf("URL = %q", redirect.URL)
	}
}

func TestLoginInitiator_Start_UnknownOrigin_FailsFast(t *testing.T) {
	starter := &mockOAuthStarter{}

	_, err := NewLoginInitiator(starter).Start(context.Background(), "google", "")
	if !errors.Is(err, ErrOriginUnknown) {
		t.Fatalf("expected ErrOriginUnknown, got %v", err)
	}
	if starter.calls != 0 {
		t.Errorf("auth calls = %d, want 0", starter.calls)
	}
}

func TestLoginInitiator_Start_AuthError_IsWrapped(t *testing.T) {
	cause := errors.New("provider disabled")
	starter := &mockOAuthStarter{
		signInWithOAuthFn: func(context.Context, string, string) (*model.OAuthRedirect, error) {
			return nil, cause
		},
	}

	_, err := NewLoginInitiator(starter).Start(context.Background(), "google", "http://localhost:3000")
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}
