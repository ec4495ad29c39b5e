package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/inflect/internal/diagnosis"
	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
)

// multipartOverhead は添付ファイル本体以外のmultipartヘッダー分の余裕。
const multipartOverhead = 64 << 10

// DiagnosisServiceInterface は診断ハンドラーが必要とするサービスインターフェース。
type DiagnosisServiceInterface interface {
	Snapshot(userID string) diagnosis.Snapshot
	Send(ctx context.Context, userID, text string) (*diagnosis.Message, error)
	AddAttachment(ctx context.Context, userID, name, contentType string, r io.Reader) (*diagnosis.Attachment, error)
	RemoveAttachment(ctx context.Context, userID string, index int) error
	ClearAttachments(ctx context.Context, userID string)
}

// DiagnosisHandler はAI診断チャットAPIのHTTPハンドラー。
// ルートは RequireSession の後に配置する。
type DiagnosisHandler struct {
	service        DiagnosisServiceInterface
	uploadMaxBytes int64
}

// NewDiagnosisHandler はDiagnosisHandlerを生成する。
func NewDiagnosisHandler(service DiagnosisServiceInterface, uploadMaxBytes int64) *DiagnosisHandler {
	return &DiagnosisHandler{
		service:        service,
		uploadMaxBytes: uploadMaxBytes,
	}
}

// sendMessageRequest はメッセージ送信リクエストのボディ。
type sendMessageRequest struct {
	Text string `json:"text"`
}

// sendMessageResponse はメッセージ送信のAPIレスポンス。
type sendMessageResponse struct {
	Reply    *diagnosis.Message `json:"reply"`
	Snapshot diagnosis.Snapshot `json:"snapshot"`
}

func newInvalidRequestError(message string) *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  message,
		Category: model.CategoryValidation,
		Action:   "リクエスト内容を確認してください。",
	}
}

// Get は会話の状態を返す。
// GET /api/diagnosis
func (h *DiagnosisHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.service.Snapshot(userID))
}

// SendMessage はメッセージを送信し、分析結果を返す。
// POST /api/diagnosis/messages
func (h *DiagnosisHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("リクエストボディが不正です。"))
		return
	}

	reply, err := h.service.Send(r.Context(), userID, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		Reply:    reply,
		Snapshot: h.service.Snapshot(userID),
	})
}

// UploadFile は添付ファイルを追加する。フォームのfileフィールドを受け付ける。
// POST /api/diagnosis/files
func (h *DiagnosisHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewAttachmentTooLargeError(h.uploadMaxBytes))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewFieldRequiredError("ファイル"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	att, err := h.service.AddAttachment(r.Context(), userID, header.Filename, contentType, file)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, att)
}

// ClearFiles は全ての添付ファイルを削除する。
// DELETE /api/diagnosis/files
func (h *DiagnosisHandler) ClearFiles(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	h.service.ClearAttachments(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFile は指定位置の添付ファイルを削除する。
// DELETE /api/diagnosis/files/{index}
func (h *DiagnosisHandler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("添付ファイルの指定が不正です。"))
		return
	}

	if err := h.service.RemoveAttachment(r.Context(), userID, index); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
