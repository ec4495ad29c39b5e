// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, external, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryExternal   = "external"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeSSRFBlocked       = "SSRF_BLOCKED"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeSessionMissing    = "SESSION_MISSING"
	ErrCodeOriginUnknown     = "ORIGIN_UNKNOWN"
	ErrCodeOAuthFailed       = "OAUTH_FAILED"
	ErrCodeEmailRequired     = "EMAIL_REQUIRED"
	ErrCodePasswordTooShort  = "PASSWORD_TOO_SHORT"
	ErrCodePasswordTooLong   = "PASSWORD_TOO_LONG"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeProfileUpdate     = "PROFILE_UPDATE_FAILED"
	ErrCodePasswordUpdate    = "PASSWORD_UPDATE_FAILED"
	ErrCodeFieldRequired     = "FIELD_REQUIRED"
	ErrCodeEmptyMessage      = "EMPTY_MESSAGE"
	ErrCodeDiagnosisBusy     = "DIAGNOSIS_BUSY"
	ErrCodeAttachmentTooBig  = "ATTACHMENT_TOO_LARGE"
	ErrCodeAttachmentIndex   = "ATTACHMENT_NOT_FOUND"
)

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: CategoryValidation,
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: CategoryValidation,
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewSessionMissingError はセッションが存在しない場合のエラーを生成する。
func NewSessionMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionMissing,
		Message:  "セッションが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewOriginUnknownError は実行時オリジンを特定できない場合のエラーを生成する。
func NewOriginUnknownError() *APIError {
	return &APIError{
		Code:     ErrCodeOriginUnknown,
		Message:  "ログイン後の戻り先URLを決定できませんでした。",
		Category: CategorySystem,
		Action:   "ページを再読み込みしてから、もう一度ログインしてください。",
	}
}

// NewOAuthFailedError はOAuthの開始に失敗した場合のエラーを生成する。
func NewOAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthFailed,
		Message:  "ログイン処理でエラーが発生しました。",
		Category: CategoryExternal,
		Action:   "時間をおいてもう一度お試しください。",
	}
}

// NewEmailRequiredError はメールアドレス未入力エラーを生成する。
func NewEmailRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  "メールアドレスを入力してください。",
		Category: CategoryValidation,
		Action:   "メールアドレスを入力してから保存してください。",
	}
}

// NewPasswordTooShortError はパスワード長不足エラーを生成する。
func NewPasswordTooShortError(min int) *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooShort,
		Message:  fmt.Sprintf("パスワードは%d文字以上で入力してください。", min),
		Category: CategoryValidation,
		Action:   "パスワードを変更しない場合は空欄のまま保存してください。",
	}
}

// NewPasswordTooLongError はパスワードがmaxバイトを超える場合のエラーを生成する。
func NewPasswordTooLongError(max int) *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooLong,
		Message:  fmt.Sprintf("パスワードは%dバイト以内で入力してください。", max),
		Category: CategoryValidation,
		Action:   "全角文字は1文字あたり3バイトとして数えます。",
	}
}

// NewInvalidCredentialError はメールアドレスまたはパスワードが一致しない場合のエラーを生成する。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "入力内容を確認するか、Googleでログインしてください。",
	}
}

// NewProfileUpdateError はプロフィール更新失敗エラーを生成する。
func NewProfileUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileUpdate,
		Message:  "アカウント情報の保存に失敗しました。",
		Category: CategoryExternal,
		Action:   "時間をおいて再度保存してください。",
	}
}

// NewPasswordUpdateError はパスワード更新失敗エラーを生成する。
func NewPasswordUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordUpdate,
		Message:  "パスワードの更新に失敗しました。",
		Category: CategoryExternal,
		Action:   "プロフィールは保存されています。パスワードのみ再度お試しください。",
	}
}

// NewFieldRequiredError は必須項目未入力エラーを生成する。
func NewFieldRequiredError(label string) *APIError {
	return &APIError{
		Code:     ErrCodeFieldRequired,
		Message:  fmt.Sprintf("%sを入力してください。", label),
		Category: CategoryValidation,
		Action:   "必須項目をすべて入力してから送信してください。",
	}
}

// NewEmptyMessageError は空メッセージ送信エラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージを入力してください。",
		Category: CategoryValidation,
		Action:   "相談内容を入力してから送信してください。",
	}
}

// NewDiagnosisBusyError は診断処理中の再送信エラーを生成する。
func NewDiagnosisBusyError() *APIError {
	return &APIError{
		Code:     ErrCodeDiagnosisBusy,
		Message:  "前の診断を処理中です。",
		Category: CategoryValidation,
		Action:   "回答が表示されてから次のメッセージを送信してください。",
	}
}

// NewAttachmentTooLargeError は添付ファイルサイズ超過エラーを生成する。
func NewAttachmentTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeAttachmentTooBig,
		Message:  fmt.Sprintf("添付ファイルが大きすぎます（上限 %d バイト）。", maxBytes),
		Category: CategoryValidation,
		Action:   "ファイルを分割するか、サイズを小さくしてから添付してください。",
	}
}

// NewAttachmentNotFoundError は指定位置の添付ファイルが存在しない場合のエラーを生成する。
func NewAttachmentNotFoundError(index int) *APIError {
	return &APIError{
		Code:     ErrCodeAttachmentIndex,
		Message:  fmt.Sprintf("指定された添付ファイルが見つかりません: %d", index),
		Category: CategoryValidation,
		Action:   "添付ファイル一覧を再読み込みしてください。",
	}
}
