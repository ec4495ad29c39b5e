// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// Email はアクセストークンに含まれるメールアドレスで、
// プロフィール未作成時の表示に使う。
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Credential はメールアドレス＋パスワードでのログインに使う認証情報。
type Credential struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// SessionEvent はセッション変更通知の種別。
type SessionEvent string

const (
	EventSignedIn    SessionEvent = "SIGNED_IN"
	EventSignedOut   SessionEvent = "SIGNED_OUT"
	EventUserUpdated SessionEvent = "USER_UPDATED"
)

// SessionChange はセッション変更通知の内容を表す。
type SessionChange struct {
	Event     SessionEvent `json:"event"`
	UserID    string       `json:"user_id"`
	SessionID string       `json:"session_id,omitempty"`
	At        time.Time    `json:"at"`
}

// OAuthRedirect はOAuth開始時にブラウザを遷移させる先を表す。
type OAuthRedirect struct {
	URL   string
	State string
}
