package model

import "time"

// Plan はプロフィールに記録される契約プラン。
type Plan string

const (
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// Valid はプラン値が既知のものかを返す。
func (p Plan) Valid() bool {
	return p == PlanBasic || p == PlanPro
}

// Profile はユーザーごとのプロフィール行を表す。
// 初回ログイン後にワーカーが非同期に作成するため、
// ログイン直後は存在しないことがある。
type Profile struct {
	ID        string // users.id と同じ値
	Email     *string
	FullName  *string
	AvatarURL *string
	Plan      Plan
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountView はマイページに表示するアカウント情報。
type AccountView struct {
	UserID   string
	Email    string
	FullName string
	Plan     Plan
	// Provisioned はプロフィール行から組み立てたかどうか。
	// false の場合はセッションのメールアドレスによる代替表示。
	Provisioned bool
}
