package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/inflect/internal/bootstrap"
	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/web"
)

// PageRenderer はHTMLページを描画する。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, name string, page web.Page) error
}

// SessionResolver はアクセストークンからセッションを取得する。
type SessionResolver interface {
	GetSession(ctx context.Context, token string) (*model.Session, error)
}

// requestSessions はリクエストのセッションCookieに紐づくSessionSourceを返す。
// 呼び出しのたびに認証サービスへ問い合わせる。
func requestSessions(resolver SessionResolver, r *http.Request) bootstrap.SessionSource {
	token := middleware.SessionToken(r)
	return bootstrap.SessionSourceFunc(func(ctx context.Context) (*model.Session, error) {
		if token == "" {
			return nil, nil
		}
		return resolver.GetSession(ctx, token)
	})
}

// redirectNavigator は最初に要求された遷移先を記録する。
// ハンドラーは処理後に記録された遷移先へリダイレクトする。
type redirectNavigator struct {
	target string
}

func (n *redirectNavigator) Replace(route string) {
	if n.target == "" {
		n.target = route
	}
}

// redirect は記録された遷移先があれば303でリダイレクトし、trueを返す。
func (n *redirectNavigator) redirect(w http.ResponseWriter, r *http.Request) bool {
	if n.target == "" {
		return false
	}
	http.Redirect(w, r, n.target, http.StatusSeeOther)
	return true
}

// newPage はリクエストのセッションとCSRFトークンを反映した共通描画データを返す。
func newPage(r *http.Request, title string, data any) web.Page {
	return web.Page{
		Title:     title,
		CSRFToken: middleware.CSRFToken(r.Context()),
		SignedIn:  middleware.SessionFromContext(r.Context()) != nil,
		Data:      data,
	}
}

// render はページを描画する。描画に失敗した場合は500を返す。
func render(renderer PageRenderer, w http.ResponseWriter, r *http.Request, status int, name string, page web.Page) {
	if err := renderer.Render(w, status, name, page); err != nil {
		slog.ErrorContext(r.Context(), "failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
