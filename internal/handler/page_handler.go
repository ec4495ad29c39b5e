package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/inflect/internal/bootstrap"
	"github.com/hitoshi/inflect/internal/diagnosis"
	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/pilot"
	"github.com/hitoshi/inflect/internal/route"
	"github.com/hitoshi/inflect/internal/web"
)

// ProfileGuard は保護ページの表示前にセッションを確認し、表示用のアカウント情報を返す。
type ProfileGuard interface {
	Enter(ctx context.Context, sessions bootstrap.SessionSource, nav bootstrap.Navigator) (*model.AccountView, error)
}

// DiagnosisSnapshotter は診断チャットの状態を返す。
type DiagnosisSnapshotter interface {
	Snapshot(userID string) diagnosis.Snapshot
}

// PageHandler は画面表示のHTTPハンドラー。
type PageHandler struct {
	renderer  PageRenderer
	sessions  SessionResolver
	guard     ProfileGuard
	diagnosis DiagnosisSnapshotter
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(renderer PageRenderer, sessions SessionResolver, guard ProfileGuard, diagnosis DiagnosisSnapshotter) *PageHandler {
	return &PageHandler{
		renderer:  renderer,
		sessions:  sessions,
		guard:     guard,
		diagnosis: diagnosis,
	}
}

// loginView はログイン画面の描画データ。
type loginView struct {
	Email string
}

// myPageView はマイページの描画データ。
type myPageView struct {
	Account *model.AccountView
}

// Home はトップページを表示する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	render(h.renderer, w, r, http.StatusOK, web.PageHome, newPage(r, "", nil))
}

// Service はサービス紹介ページを表示する。
// GET /service
func (h *PageHandler) Service(w http.ResponseWriter, r *http.Request) {
	render(h.renderer, w, r, http.StatusOK, web.PageService, newPage(r, "サービス", nil))
}

// Pilot はパイロットプログラムの申込ページを表示する。
// GET /pilot
func (h *PageHandler) Pilot(w http.ResponseWriter, r *http.Request) {
	page := newPage(r, "パイロットプログラム", pilot.ProInput{})
	switch {
	case r.URL.Query().Get("granted") == string(model.PilotBasic):
		page.Flash = "Basicパイロットに参加しました。"
	case r.URL.Query().Get("submitted") == string(model.PilotPro):
		page.Flash = "Proパイロットへのお申し込みを受け付けました。"
	}
	render(h.renderer, w, r, http.StatusOK, web.PagePilot, page)
}

// Login はログインページを表示する。セッションがある場合はマイページへ遷移する。
// GET /login
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	if middleware.SessionFromContext(r.Context()) != nil {
		http.Redirect(w, r, route.MyPage, http.StatusSeeOther)
		return
	}

	page := newPage(r, "ログイン", loginView{})
	page.Error = loginErrorMessage(r.URL.Query().Get("error"), r.URL.Query().Get("error_description"))
	render(h.renderer, w, r, http.StatusOK, web.PageLogin, page)
}

// MyPage はアカウント情報を表示する。
// セッションが無い場合は何も描画せずにログインページへ遷移する。
// GET /mypage
func (h *PageHandler) MyPage(w http.ResponseWriter, r *http.Request) {
	nav := &redirectNavigator{}
	view, err := h.guard.Enter(r.Context(), requestSessions(h.sessions, r), nav)
	if errors.Is(err, bootstrap.ErrNoSession) {
		nav.redirect(w, r)
		return
	}
	if err != nil {
		if r.Context().Err() == nil {
			slog.ErrorContext(r.Context(), "failed to enter mypage", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
		}
		return
	}

	page := newPage(r, "マイページ", myPageView{Account: view})
	page.SignedIn = true
	query := r.URL.Query()
	switch {
	case query.Get("saved") != "":
		page.Flash = "アカウント情報を保存しました。"
	case query.Get("plan") == string(model.PlanPro):
		page.Flash = "Proプランに変更しました。"
	case query.Get("error") == "plan":
		page.Error = "プランの変更に失敗しました。時間をおいてもう一度お試しください。"
	}
	render(h.renderer, w, r, http.StatusOK, web.PageMyPage, page)
}

// AIDiagnosis はAI診断チャットを表示する。RequireSessionOrRedirect の後に配置する。
// GET /ai-diagnosis
func (h *PageHandler) AIDiagnosis(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, route.Login, http.StatusSeeOther)
		return
	}
	render(h.renderer, w, r, http.StatusOK, web.PageDiagnosis, newPage(r, "AI診断", h.diagnosis.Snapshot(userID)))
}

// NotFound は404ページを表示する。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	page := newPage(r, "ページが見つかりません", nil)
	page.Error = "お探しのページは見つかりませんでした。"
	render(h.renderer, w, r, http.StatusNotFound, web.PageError, page)
}

// loginErrorMessage はログインページのerrorクエリを表示用メッセージに変換する。
func loginErrorMessage(code, description string) string {
	switch code {
	case "":
		return ""
	case route.ErrorOriginUnknown:
		return apiErrorMessage(model.NewOriginUnknownError())
	case route.ErrorInvalidCredentials:
		return apiErrorMessage(model.NewInvalidCredentialError())
	}

	detail := code
	if description != "" {
		detail += ": " + description
	}
	return apiErrorMessage(model.NewOAuthFailedError()) + "（" + detail + "）"
}
