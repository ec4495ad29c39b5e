// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する（大文字小文字を区別しない）。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// プロフィール行はここでは作成しない（ワーカーが非同期に作成する）。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CredentialRepository はパスワード認証情報の永続化インターフェース。
type CredentialRepository interface {
	// Upsert はパスワードハッシュを作成または置き換える。
	Upsert(ctx context.Context, userID, passwordHash string) error
	// FindByUserID は指定ユーザーの認証情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。
	// 未作成の場合はnilを返す（エラーではない）。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// Update はemailとfull_nameを更新する。fullNameがnilの場合はNULLを設定する。
	// 同じ値での更新を繰り返しても結果は変わらない。
	Update(ctx context.Context, userID, email string, fullName *string) error

	// UpdatePlan は契約プランを更新する。
	UpdatePlan(ctx context.Context, userID string, plan model.Plan) error

	// CreateFromUser はユーザー情報からプロフィール行を作成する。
	// 既に存在する場合は何もせずfalseを返す。
	CreateFromUser(ctx context.Context, user *model.User) (bool, error)

	// ListUnprovisionedUsers はプロフィール未作成のユーザーを作成日時順に取得する。
	ListUnprovisionedUsers(ctx context.Context, limit int) ([]*model.User, error)
}

// PilotRepository はパイロット申込の永続化インターフェース。
type PilotRepository interface {
	// Create は申込を作成する。IDとCreatedAtは呼び出し側で設定する。
	Create(ctx context.Context, app *model.PilotApplication) error

	// ListPendingSiteChecks はWebサイト確認が未実施の申込を古い順に取得する。
	ListPendingSiteChecks(ctx context.Context, limit int) ([]*model.PilotApplication, error)

	// MarkSiteChecked はWebサイト確認結果を記録する。
	// statusCodeが0の場合は取得失敗としてNULLを記録する。
	MarkSiteChecked(ctx context.Context, id string, statusCode int, title string, checkedAt time.Time) error
}
