package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/inflect/internal/account"
	"github.com/hitoshi/inflect/internal/bootstrap"
	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/route"
	"github.com/hitoshi/inflect/internal/web"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Save(ctx context.Context, sessions bootstrap.SessionSource, in account.SaveInput) (*account.SaveResult, error)
	UpgradePlan(ctx context.Context, sessions bootstrap.SessionSource) (model.Plan, error)
	CurrentPlan(ctx context.Context, userID string) (model.Plan, error)
}

// AccountHandler はマイページの更新操作のHTTPハンドラー。
type AccountHandler struct {
	service  AccountServiceInterface
	sessions SessionResolver
	renderer PageRenderer
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, sessions SessionResolver, renderer PageRenderer) *AccountHandler {
	return &AccountHandler{
		service:  service,
		sessions: sessions,
		renderer: renderer,
	}
}

// Save はアカウント情報を保存する。
// 失敗時は入力値を残したままマイページを再表示する（パスワードは再表示しない）。
// POST /mypage/account
func (h *AccountHandler) Save(w http.ResponseWriter, r *http.Request) {
	in := account.SaveInput{
		Email:    r.PostFormValue("email"),
		FullName: r.PostFormValue("full_name"),
		Password: r.PostFormValue("password"),
	}

	_, err := h.service.Save(r.Context(), requestSessions(h.sessions, r), in)
	if errors.Is(err, account.ErrSessionMissing) {
		http.Redirect(w, r, route.Login, http.StatusSeeOther)
		return
	}
	if err != nil {
		// 入力検証はセッション確認より先に行われるため、ここで改めてセッションを確認する
		session := middleware.SessionFromContext(r.Context())
		if session == nil {
			http.Redirect(w, r, route.Login, http.StatusSeeOther)
			return
		}

		var apiErr *model.APIError
		status := http.StatusInternalServerError
		if errors.As(err, &apiErr) {
			status = mapAPIErrorToHTTPStatus(apiErr)
		} else {
			slog.ErrorContext(r.Context(), "failed to save account", slog.String("error", err.Error()))
		}

		view := &model.AccountView{
			UserID:      session.UserID,
			Email:       in.Email,
			FullName:    in.FullName,
			Provisioned: true,
		}
		// 入力検証エラーではバックエンドを呼ばないため、プランは表示しない
		if apiErr == nil || apiErr.Category != model.CategoryValidation {
			plan, planErr := h.service.CurrentPlan(r.Context(), session.UserID)
			if planErr != nil {
				slog.ErrorContext(r.Context(), "failed to load plan", slog.String("error", planErr.Error()))
			} else {
				view.Plan = plan
			}
		}

		page := newPage(r, "マイページ", myPageView{Account: view})
		page.Error = apiErrorMessage(err)
		render(h.renderer, w, r, status, web.PageMyPage, page)
		return
	}

	http.Redirect(w, r, route.MyPage+"?saved=1", http.StatusSeeOther)
}

// UpgradePlan は契約プランをProに変更する。
// POST /mypage/plan
func (h *AccountHandler) UpgradePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.service.UpgradePlan(r.Context(), requestSessions(h.sessions, r))
	if errors.Is(err, account.ErrSessionMissing) {
		http.Redirect(w, r, route.Login, http.StatusSeeOther)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to upgrade plan", slog.String("error", err.Error()))
		http.Redirect(w, r, route.MyPage+"?error=plan", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, route.MyPage+"?plan="+string(plan), http.StatusSeeOther)
}
