package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeEmailRequired, model.ErrCodePasswordTooShort, model.ErrCodePasswordTooLong,
		model.ErrCodeFieldRequired, model.ErrCodeEmptyMessage:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeSessionMissing, model.ErrCodeInvalidCredential:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound, model.ErrCodeAttachmentIndex:
		return http.StatusNotFound
	case model.ErrCodeDiagnosisBusy:
		return http.StatusConflict
	case model.ErrCodeAttachmentTooBig:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeProfileUpdate, model.ErrCodePasswordUpdate, model.ErrCodeOAuthFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// apiErrorMessage は画面表示用のメッセージを返す。APIError以外は汎用メッセージにする。
func apiErrorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Action != "" {
			return apiErr.Message + " " + apiErr.Action
		}
		return apiErr.Message
	}
	return "内部エラーが発生しました。しばらく待ってから再度お試しください。"
}
