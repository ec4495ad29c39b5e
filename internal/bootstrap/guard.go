package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/route"
)

// ErrNoSession は保護ページへのアクセス時にセッションが無いことを表す。
var ErrNoSession = errors.New("no active session")

// ProfileSource はユーザーのプロフィール行を返す。未作成の場合は nil, nil。
type ProfileSource interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// ProfileGuard は保護ページの表示前にセッションを確認し、表示用のアカウント情報を組み立てる。
type ProfileGuard struct {
	profiles ProfileSource
	sleeper  Sleeper
	recorder Recorder
	Policy   RetryPolicy // プロフィール待ちのポーリング方針（デフォルト: ProfilePollPolicy）
}

// NewProfileGuard はProfileGuardを生成する。
func NewProfileGuard(profiles ProfileSource, sleeper Sleeper, recorder Recorder) *ProfileGuard {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ProfileGuard{
		profiles: profiles,
		sleeper:  sleeper,
		recorder: recorder,
		Policy:   ProfilePollPolicy,
	}
}

// Enter は保護ページに入る際の確認を行う。
//
// セッションが無い場合は /login へ遷移して ErrNoSession を返す。
// セッションがあればプロフィールをポーリングし、見つかればその内容で、
// 見つからなければセッションのメールアドレスのみでビューを返す（エラーにはしない）。
// コンテキストがキャンセルされた場合はビューを返さずにコンテキストのエラーを返す。
func (g *ProfileGuard) Enter(ctx context.Context, sessions SessionSource, nav Navigator) (*model.AccountView, error) {
	session, err := sessions.GetSession(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to get session for protected page",
			slog.String("error", err.Error()),
		)
	}
	if session == nil {
		nav.Replace(route.Login)
		return nil, ErrNoSession
	}

	result, err := Poll(ctx, g.Policy, g.sleeper, "profile",
		func(ctx context.Context) (*model.Profile, bool, error) {
			profile, err := g.profiles.FindByUserID(ctx, session.UserID)
			return profile, profile != nil, err
		},
	)
	if err != nil {
		return nil, err
	}
	g.recorder.RecordProfileLookup(result.Found, result.Attempts)

	if !result.Found {
		slog.InfoContext(ctx, "profile not provisioned yet, using session data",
			slog.String("user_id", session.UserID),
			slog.Int("attempts", result.Attempts),
		)
		return &model.AccountView{
			UserID: session.UserID,
			Email:  session.Email,
			Plan:   model.PlanBasic,
		}, nil
	}

	return accountViewFromProfile(session, result.Value), nil
}

// accountViewFromProfile はプロフィール行からビューを組み立てる。
// プロフィールのメールアドレスが未設定の場合はセッションのものを使う。
func accountViewFromProfile(session *model.Session, profile *model.Profile) *model.AccountView {
	view := &model.AccountView{
		UserID:      session.UserID,
		Email:       session.Email,
		Plan:        profile.Plan,
		Provisioned: true,
	}
	if profile.Email != nil {
		view.Email = *profile.Email
	}
	if profile.FullName != nil {
		view.FullName = *profile.FullName
	}
	if !view.Plan.Valid() {
		view.Plan = model.PlanBasic
	}
	return view
}
