package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/pilot"
	"github.com/hitoshi/inflect/internal/route"
	"github.com/hitoshi/inflect/internal/web"
)

// PilotServiceInterface はパイロット申込ハンドラーが必要とするサービスインターフェース。
type PilotServiceInterface interface {
	GrantBasic(ctx context.Context, userID string) (*model.PilotApplication, error)
	SubmitPro(ctx context.Context, userID string, in pilot.ProInput) (*model.PilotApplication, error)
}

// PilotHandler はパイロット申込のHTTPハンドラー。
type PilotHandler struct {
	service  PilotServiceInterface
	renderer PageRenderer
}

// NewPilotHandler はPilotHandlerを生成する。
func NewPilotHandler(service PilotServiceInterface, renderer PageRenderer) *PilotHandler {
	return &PilotHandler{
		service:  service,
		renderer: renderer,
	}
}

// GrantBasic はBasicパイロットに参加する。未ログインでも参加できる。
// POST /pilot/basic
func (h *PilotHandler) GrantBasic(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	if _, err := h.service.GrantBasic(r.Context(), userID); err != nil {
		h.renderError(w, r, pilot.ProInput{}, err)
		return
	}

	http.Redirect(w, r, route.Pilot+"?granted="+string(model.PilotBasic), http.StatusSeeOther)
}

// SubmitPro はProパイロットに申し込む。
// 入力エラーの場合は入力値を残したまま申込ページを再表示する。
// POST /pilot/pro
func (h *PilotHandler) SubmitPro(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	in := pilot.ProInput{
		CompanyName: r.PostFormValue("company_name"),
		Website:     r.PostFormValue("website"),
		Summary:     r.PostFormValue("summary"),
		Reason:      r.PostFormValue("reason"),
		Purpose:     r.PostFormValue("purpose"),
	}

	if _, err := h.service.SubmitPro(r.Context(), userID, in); err != nil {
		h.renderError(w, r, in, err)
		return
	}

	http.Redirect(w, r, route.Pilot+"?submitted="+string(model.PilotPro), http.StatusSeeOther)
}

func (h *PilotHandler) renderError(w http.ResponseWriter, r *http.Request, in pilot.ProInput, err error) {
	status := http.StatusInternalServerError
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status = mapAPIErrorToHTTPStatus(apiErr)
	} else {
		slog.ErrorContext(r.Context(), "failed to save pilot application", slog.String("error", err.Error()))
	}

	page := newPage(r, "パイロットプログラム", in)
	page.Error = apiErrorMessage(err)
	render(h.renderer, w, r, status, web.PagePilot, page)
}
