// Package pilot はパイロットプログラム申込のドメインロジックを提供する。
package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/security"
)

// 必須項目のラベル（エラーメッセージに使用する）
const (
	LabelCompanyName = "会社名"
	LabelSummary     = "会社紹介"
	LabelReason      = "米国進出の理由"
	LabelPurpose     = "米国進出の目的"
)

// ApplicationStore はパイロット申込の保存操作。
type ApplicationStore interface {
	Create(ctx context.Context, app *model.PilotApplication) error
}

// ProInput はPro申込フォームの入力。
type ProInput struct {
	CompanyName string
	// Website は任意。
	Website string
	Summary string
	Reason  string
	Purpose string
}

// Service はパイロット申込のサービス層。
type Service struct {
	store     ApplicationStore
	guard     security.URLGuard
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store ApplicationStore, guard security.URLGuard, sanitizer security.TextSanitizer) *Service {
	return &Service{
		store:     store,
		guard:     guard,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// GrantBasic はBasicパイロットの権限付与を記録する。
// 未ログインでも付与でき、その場合 userID は空文字を渡す。
func (s *Service) GrantBasic(ctx context.Context, userID string) (*model.PilotApplication, error) {
	app := &model.PilotApplication{
		ID:        uuid.New().String(),
		UserID:    optionalUserID(userID),
		Kind:      model.PilotBasic,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("Basicパイロットの記録に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "basic pilot granted",
		slog.String("application_id", app.ID),
		slog.Bool("anonymous", app.UserID == nil),
	)
	return app, nil
}

// ValidatePro は入力を無害化した上で検証し、保存用の申込を組み立てる。
// 必須項目は会社名、会社紹介、理由、目的の順に検証し、最初の違反を返す。
func (s *Service) ValidatePro(in ProInput) (*model.PilotApplication, error) {
	app := &model.PilotApplication{
		Kind:        model.PilotPro,
		CompanyName: s.sanitizer.Sanitize(in.CompanyName),
		Summary:     s.sanitizer.Sanitize(in.Summary),
		Reason:      s.sanitizer.Sanitize(in.Reason),
		Purpose:     s.sanitizer.Sanitize(in.Purpose),
		Website:     strings.TrimSpace(in.Website),
	}

	required := []struct {
		label string
		value string
	}{
		{LabelCompanyName, app.CompanyName},
		{LabelSummary, app.Summary},
		{LabelReason, app.Reason},
		{LabelPurpose, app.Purpose},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, model.NewFieldRequiredError(field.label)
		}
	}

	if app.Website != "" {
		if err := s.guard.ValidateURL(app.Website); err != nil {
			if errors.Is(err, security.ErrBlockedURL) {
				return nil, model.NewSSRFBlockedError()
			}
			return nil, model.NewInvalidURLError(err.Error())
		}
	}
	return app, nil
}

// SubmitPro はPro申込を検証して保存する。
// Webサイトの到達確認は保存後にワーカーが非同期で行う。
func (s *Service) SubmitPro(ctx context.Context, userID string, in ProInput) (*model.PilotApplication, error) {
	app, err := s.ValidatePro(in)
	if err != nil {
		return nil, err
	}

	app.ID = uuid.New().String()
	app.UserID = optionalUserID(userID)
	app.CreatedAt = s.now()

	if err := s.store.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("Proパイロット申込の保存に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "pro pilot submitted",
		slog.String("application_id", app.ID),
		slog.Bool("has_website", app.Website != ""),
	)
	return app, nil
}

func optionalUserID(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}
