// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/inflect/internal/auth"
	"github.com/hitoshi/inflect/internal/bootstrap"
	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/route"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	ResolveState(state string) (provider, redirectTo string, err error)
	CompleteOAuth(ctx context.Context, provider, code string) (*auth.IssuedSession, error)
	SignInWithPassword(ctx context.Context, email, password string) (*auth.IssuedSession, error)
	GetSession(ctx context.Context, token string) (*model.Session, error)
	GetCurrentUser(ctx context.Context, token string) (*model.User, error)
	SignOut(ctx context.Context, token string) error
	OnAuthStateChange(fn auth.Listener) func()
}

// LoginStarter はOAuthログインを開始する。
type LoginStarter interface {
	Start(ctx context.Context, provider, origin string) (*model.OAuthRedirect, error)
}

// CallbackResolver はOAuthリダイレクト後のセッション確立を待って遷移先を決める。
type CallbackResolver interface {
	Resolve(ctx context.Context, query url.Values, sessions bootstrap.SessionSource, nav bootstrap.Navigator) bootstrap.Outcome
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain      string
	CookieSecure      bool
	SessionMaxAge     int // セッションCookieの有効期間（秒）
	TrustProxyHeaders bool
	// HeartbeatInterval はセッション変更ストリームのキープアライブ間隔。0の場合は25秒。
	HeartbeatInterval time.Duration
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	initiator LoginStarter
	resolver  CallbackResolver
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, initiator LoginStarter, resolver CallbackResolver, config AuthHandlerConfig) *AuthHandler {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 25 * time.Second
	}
	return &AuthHandler{
		service:   service,
		initiator: initiator,
		resolver:  resolver,
		config:    config,
	}
}

// StartGoogle はGoogle OAuthフローを開始する。
// POST /auth/login/google
func (h *AuthHandler) StartGoogle(w http.ResponseWriter, r *http.Request) {
	origin := bootstrap.RequestOrigin(r, h.config.TrustProxyHeaders)

	redirect, err := h.initiator.Start(r.Context(), auth.ProviderGoogle, origin)
	if errors.Is(err, bootstrap.ErrOriginUnknown) {
		slog.WarnContext(r.Context(), "login origin unknown", slog.String("host", r.Host))
		http.Redirect(w, r, route.LoginWithError(route.ErrorOriginUnknown, ""), http.StatusSeeOther)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to start oauth", slog.String("error", err.Error()))
		http.Redirect(w, r, route.LoginWithError(route.ErrorOAuth, ""), http.StatusSeeOther)
		return
	}

	// stateをCookieにも保存し、コールバックが同じブラウザからのものか確認する
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    redirect.State,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, redirect.URL, http.StatusSeeOther)
}

// ProviderCallback はOAuthプロバイダーからのコールバックを処理する。
// セッションCookieを設定し、ログイン開始時に指定されたコールバック先へリダイレクトする。
// プロバイダーのエラーはそのままコールバック先へ転送する。
// GET /auth/v1/callback?code=xxx&state=yyy
func (h *AuthHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.WarnContext(r.Context(), "oauth state mismatch")
		http.Redirect(w, r, route.LoginWithError(route.ErrorOAuth, ""), http.StatusFound)
		return
	}
	h.clearCookie(w, oauthStateCookie, "")

	provider, redirectTo, err := h.service.ResolveState(state)
	if err != nil {
		slog.WarnContext(r.Context(), "oauth state rejected", slog.String("error", err.Error()))
		http.Redirect(w, r, route.LoginWithError(route.ErrorOAuth, ""), http.StatusFound)
		return
	}

	// 2. プロバイダーのエラー
	if code := query.Get("error"); code != "" {
		http.Redirect(w, r, withErrorQuery(redirectTo, code, query.Get("error_description")), http.StatusFound)
		return
	}

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		http.Redirect(w, r, withErrorQuery(redirectTo, "invalid_request", "missing authorization code"), http.StatusFound)
		return
	}

	// 4. 認証処理
	issued, err := h.service.CompleteOAuth(r.Context(), provider, code)
	if err != nil {
		slog.ErrorContext(r.Context(), "oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, withErrorQuery(redirectTo, "server_error", ""), http.StatusFound)
		return
	}

	// 5. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, issued.AccessToken)

	http.Redirect(w, r, redirectTo, http.StatusFound)
}

// Callback はブラウザが戻ってきた後にセッションの確立を待ち、遷移先へリダイレクトする。
// GET /auth/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	nav := &redirectNavigator{}
	out := h.resolver.Resolve(r.Context(), r.URL.Query(), requestSessions(h.service, r), nav)
	if out.State == bootstrap.StateCanceled {
		// クライアントは切断済み
		return
	}
	nav.redirect(w, r)
}

// PasswordLogin はメールアドレスとパスワードでログインする。
// POST /auth/login/password
func (h *AuthHandler) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	issued, err := h.service.SignInWithPassword(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		http.Redirect(w, r, route.LoginWithError(route.ErrorInvalidCredentials, ""), http.StatusSeeOther)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "password login failed", slog.String("error", err.Error()))
		http.Redirect(w, r, route.LoginWithError("server_error", ""), http.StatusSeeOther)
		return
	}

	h.setSessionCookie(w, issued.AccessToken)
	http.Redirect(w, r, route.MyPage, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := h.service.SignOut(r.Context(), token); err != nil {
			slog.ErrorContext(r.Context(), "failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearCookie(w, middleware.SessionCookieName, h.config.CookieDomain)
	http.Redirect(w, r, route.Home, http.StatusSeeOther)
}

// sessionResponse は現在のセッション情報のAPIレスポンス。
type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Session は現在のセッション情報を返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	expiresAt := session.ExpiresAt.UTC()
	resp := sessionResponse{
		Authenticated: true,
		UserID:        session.UserID,
		Email:         session.Email,
		ExpiresAt:     &expiresAt,
	}
	// 表示名は取得できなくてもセッション情報は返す
	user, err := h.service.GetCurrentUser(r.Context(), middleware.SessionToken(r))
	if err != nil {
		slog.WarnContext(r.Context(), "failed to load current user", slog.String("error", err.Error()))
	} else if user != nil {
		resp.Name = user.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// withErrorQuery はtargetにerrorとerror_descriptionのクエリを付与する。
func withErrorQuery(target, code, description string) string {
	u, err := url.Parse(target)
	if err != nil {
		return route.LoginWithError(code, description)
	}
	q := u.Query()
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
