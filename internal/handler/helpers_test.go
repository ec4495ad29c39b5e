package handler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/inflect/internal/auth"
	"github.com/hitoshi/inflect/internal/bootstrap"
	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/web"
)

// --- モック定義 ---

type mockAuthService struct {
	resolveStateFn       func(state string) (string, string, error)
	completeOAuthFn      func(ctx context.Context, provider, code string) (*auth.IssuedSession, error)
	signInWithPasswordFn func(ctx context.Context, email, password string) (*auth.IssuedSession, error)
	getSessionFn         func(ctx context.Context, token string) (*model.Session, error)
	getCurrentUserFn     func(ctx context.Context, token string) (*model.User, error)
	signOutFn            func(ctx context.Context, token string) error

	notifier *auth.LocalNotifier

	mu              sync.Mutex
	getSessionCalls int
}

func newMockAuthService() *mockAuthService {
	return &mockAuthService{notifier: auth.NewLocalNotifier()}
}

func (m *mockAuthService) ResolveState(state string) (string, string, error) {
	if m.resolveStateFn != nil {
		return m.resolveStateFn(state)
	}
	return "", "", auth.ErrInvalidState
}

func (m *mockAuthService) CompleteOAuth(ctx context.Context, provider, code string) (*auth.IssuedSession, error) {
	if m.completeOAuthFn != nil {
		return m.completeOAuthFn(ctx, provider, code)
	}
	return nil, nil
}

func (m *mockAuthService) SignInWithPassword(ctx context.Context, email, password string) (*auth.IssuedSession, error) {
	if m.signInWithPasswordFn != nil {
		return m.signInWithPasswordFn(ctx, email, password)
	}
	return nil, auth.ErrInvalidCredentials
}

func (m *mockAuthService) GetSession(ctx context.Context, token string) (*model.Session, error) {
	m.mu.Lock()
	m.getSessionCalls++
	m.mu.Unlock()
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, token)
	}
	return nil, nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, token)
	}
	return nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, token string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) OnAuthStateChange(fn auth.Listener) func() {
	return m.notifier.Subscribe(fn)
}

func (m *mockAuthService) sessionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSessionCalls
}

// withValidToken はtokenに対してuserIDのセッションを返すよう設定する。
func (m *mockAuthService) withValidToken(token, userID string) *mockAuthService {
	m.getSessionFn = func(_ context.Context, got string) (*model.Session, error) {
		if got != token {
			return nil, nil
		}
		return testSession(userID), nil
	}
	return m
}

type mockLoginStarter struct {
	startFn func(ctx context.Context, provider, origin string) (*model.OAuthRedirect, error)
	calls   int
}

func (m *mockLoginStarter) Start(ctx context.Context, provider, origin string) (*model.OAuthRedirect, error) {
	m.calls++
	if m.startFn != nil {
		return m.startFn(ctx, provider, origin)
	}
	return &model.OAuthRedirect{URL: "https://accounts.google.com/o/oauth2/auth", State: "state"}, nil
}

type mockProfileSource struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.Profile, error)
	calls          int
}

func (m *mockProfileSource) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	m.calls++
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

type renderCall struct {
	status int
	name   string
	page   web.Page
}

// captureRenderer は描画内容を記録し、ステータスのみ書き込む。
type captureRenderer struct {
	calls []renderCall
	err   error
}

func (c *captureRenderer) Render(w http.ResponseWriter, status int, name string, page web.Page) error {
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, renderCall{status: status, name: name, page: page})
	w.WriteHeader(status)
	return nil
}

func (c *captureRenderer) last(t *testing.T) renderCall {
	t.Helper()
	if len(c.calls) == 0 {
		t.Fatal("expected a page to be rendered")
	}
	return c.calls[len(c.calls)-1]
}

// --- ヘルパー ---

// noSleep は待機せずにコンテキストの状態だけを返す。
var noSleep = bootstrap.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
})

func testSession(userID string) *model.Session {
	return &model.Session{
		ID:        "session-" + userID,
		UserID:    userID,
		Email:     userID + "@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// signedIn はセッションミドルウェア通過後と同じ状態のリクエストを返す。
func signedIn(r *http.Request, token string, session *model.Session) *http.Request {
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	return r.WithContext(middleware.ContextWithSession(r.Context(), session))
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
