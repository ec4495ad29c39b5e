// Package account はマイページのアカウント情報保存と契約プラン変更のドメインロジックを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/inflect/internal/bootstrap"
	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/repository"
)

// ErrSessionMissing は保存時にセッションが失われていたことを表す。
var ErrSessionMissing = errors.New("session missing")

// DefaultPasswordMinLength はパスワードの最小文字数のデフォルト値。
const DefaultPasswordMinLength = 8

// PasswordMaxBytes はbcryptが扱えるパスワードの最大バイト数。
const PasswordMaxBytes = 72

// ProfileStore はプロフィール行の読み書き操作。
type ProfileStore interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
	Update(ctx context.Context, userID, email string, fullName *string) error
	UpdatePlan(ctx context.Context, userID string, plan model.Plan) error
	CreateFromUser(ctx context.Context, user *model.User) (bool, error)
}

// PasswordUpdater は認証サービスのパスワード更新操作。
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, userID, password string) error
}

// SaveInput はアカウント保存フォームの入力。
type SaveInput struct {
	Email    string
	FullName string
	// Password は空の場合は変更しない。
	Password string
}

// SaveResult は保存後の値。
type SaveResult struct {
	Email           string
	FullName        string
	PasswordUpdated bool
}

// Service はアカウント管理のサービス層。
type Service struct {
	profiles          ProfileStore
	passwords         PasswordUpdater
	passwordMinLength int
}

// NewService はServiceの新しいインスタンスを生成する。
// passwordMinLength が0以下の場合は DefaultPasswordMinLength を使用する。
func NewService(profiles ProfileStore, passwords PasswordUpdater, passwordMinLength int) *Service {
	if passwordMinLength <= 0 {
		passwordMinLength = DefaultPasswordMinLength
	}
	return &Service{
		profiles:          profiles,
		passwords:         passwords,
		passwordMinLength: passwordMinLength,
	}
}

// Validate は入力値を検証する。バックエンドへの呼び出しは行わない。
func (s *Service) Validate(in SaveInput) error {
	if strings.TrimSpace(in.Email) == "" {
		return model.NewEmailRequiredError()
	}
	if in.Password == "" {
		return nil
	}
	password := strings.TrimSpace(in.Password)
	if utf8.RuneCountInString(password) < s.passwordMinLength {
		return model.NewPasswordTooShortError(s.passwordMinLength)
	}
	if len(password) > PasswordMaxBytes {
		return model.NewPasswordTooLongError(PasswordMaxBytes)
	}
	return nil
}

// Save はアカウント情報を保存する。
//
// 入力検証を先に行い、違反があればセッション確認を含めて一切の呼び出しを行わない。
// 検証後にセッションを再確認し、失われていれば ErrSessionMissing を返す。
// プロフィール更新とパスワード更新は独立した呼び出しで、片方の失敗で他方は巻き戻さない。
func (s *Service) Save(ctx context.Context, sessions bootstrap.SessionSource, in SaveInput) (*SaveResult, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	session, err := sessions.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("セッションの確認に失敗しました: %w", err)
	}
	if session == nil {
		return nil, ErrSessionMissing
	}

	result := &SaveResult{
		Email:    strings.TrimSpace(in.Email),
		FullName: strings.TrimSpace(in.FullName),
	}
	var fullName *string
	if result.FullName != "" {
		fullName = &result.FullName
	}

	if err := s.updateProfile(ctx, session, result.Email, fullName); err != nil {
		slog.ErrorContext(ctx, "failed to update profile",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProfileUpdateError()
	}

	if password := strings.TrimSpace(in.Password); password != "" {
		if err := s.passwords.UpdatePassword(ctx, session.UserID, password); err != nil {
			slog.ErrorContext(ctx, "failed to update password",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewPasswordUpdateError()
		}
		result.PasswordUpdated = true
	}

	slog.InfoContext(ctx, "account saved",
		slog.String("user_id", session.UserID),
		slog.Bool("password_updated", result.PasswordUpdated),
	)
	return result, nil
}

// UpgradePlan は契約プランをProに変更する（決済は伴わないデモ動作）。
// 既にProの場合は何もせず成功する。
func (s *Service) UpgradePlan(ctx context.Context, sessions bootstrap.SessionSource) (model.Plan, error) {
	session, err := sessions.GetSession(ctx)
	if err != nil {
		return "", fmt.Errorf("セッションの確認に失敗しました: %w", err)
	}
	if session == nil {
		return "", ErrSessionMissing
	}

	profile, err := s.ensureProfile(ctx, session)
	if err != nil {
		return "", fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile.Plan == model.PlanPro {
		return model.PlanPro, nil
	}

	if err := s.profiles.UpdatePlan(ctx, session.UserID, model.PlanPro); err != nil {
		return "", fmt.Errorf("プランの更新に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "plan upgraded",
		slog.String("user_id", session.UserID),
		slog.String("plan", string(model.PlanPro)),
	)
	return model.PlanPro, nil
}

// CurrentPlan は保存済みの契約プランを返す。プロフィール未作成の場合はBasicとする。
func (s *Service) CurrentPlan(ctx context.Context, userID string) (model.Plan, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil || !profile.Plan.Valid() {
		return model.PlanBasic, nil
	}
	return profile.Plan, nil
}

// updateProfile はプロフィールを更新する。
// ワーカーによる作成前で行が無い場合は、セッション情報から作成してから更新する。
func (s *Service) updateProfile(ctx context.Context, session *model.Session, email string, fullName *string) error {
	err := s.profiles.Update(ctx, session.UserID, email, fullName)
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if _, err := s.profiles.CreateFromUser(ctx, &model.User{ID: session.UserID, Email: session.Email}); err != nil {
		return err
	}
	return s.profiles.Update(ctx, session.UserID, email, fullName)
}

// ensureProfile はプロフィールを取得し、未作成であればセッション情報から作成する。
func (s *Service) ensureProfile(ctx context.Context, session *model.Session) (*model.Profile, error) {
	profile, err := s.profiles.FindByUserID(ctx, session.UserID)
	if err != nil || profile != nil {
		return profile, err
	}

	if _, err := s.profiles.CreateFromUser(ctx, &model.User{ID: session.UserID, Email: session.Email}); err != nil {
		return nil, err
	}
	profile, err = s.profiles.FindByUserID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, repository.ErrNotFound
	}
	return profile, nil
}
