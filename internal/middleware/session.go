// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/inflect/internal/model"
)

// SessionCookieName はアクセストークンを保持するHTTP Only Cookieの名前。
const SessionCookieName = "sb_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
	sessionContextKey = contextKey("session")
)

// SessionResolver はアクセストークンからセッションを解決する。
// 無効・期限切れのトークンには nil, nil を返す。
type SessionResolver interface {
	GetSession(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware はCookieのアクセストークンからセッションを解決し、
// 有効な場合のみセッションとユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// セッションが無くてもリクエストは拒否しない。保護が必要なルートには RequireSession を重ねる。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := resolver.GetSession(r.Context(), token)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to resolve session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequireSession はセッションの無いリクエストに401を返すミドルウェアを返す。
// APIルート向け。NewSessionMiddleware の後に配置する。
func RequireSession() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionFromContext(r.Context()) == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionMissingError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSessionOrRedirect はセッションの無いリクエストをtargetへリダイレクトするミドルウェアを返す。
// 画面ルート向け。保護されたページは描画前に必ずリダイレクトする。
func RequireSessionOrRedirect(target string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionFromContext(r.Context()) == nil {
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionToken はリクエストのセッションCookieからアクセストークンを取得する。
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。無い場合は nil。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションが解決されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithSession はコンテキストにセッションとユーザーIDを注入する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, userIDContextKey, session.UserID)
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
