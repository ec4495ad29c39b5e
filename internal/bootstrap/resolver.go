package bootstrap

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/route"
)

// State はコールバック処理の状態。
type State string

const (
	StateCheckingErrorParam State = "CHECKING_ERROR_PARAM"
	StatePolling            State = "POLLING"
	StateResolved           State = "RESOLVED"
	StateFailed             State = "FAILED"
	// StateCanceled は処理中にリクエストが中断されたことを表す。遷移は行われない。
	StateCanceled State = "CANCELED"
)

// Outcome はコールバック処理の最終結果。
type Outcome struct {
	State State
	// Route は遷移先。StateCanceled の場合は空。
	Route    string
	Attempts int
}

// CallbackResolver はOAuthリダイレクト後にセッションの確立を待ち、遷移先を決める。
type CallbackResolver struct {
	sleeper  Sleeper
	recorder Recorder
	Policy   RetryPolicy // セッション待ちのポーリング方針（デフォルト: SessionPollPolicy）
}

// NewCallbackResolver はCallbackResolverを生成する。
// sleeper が nil の場合は実時間で待機し、recorder が nil の場合は記録しない。
func NewCallbackResolver(sleeper Sleeper, recorder Recorder) *CallbackResolver {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CallbackResolver{
		sleeper:  sleeper,
		recorder: recorder,
		Policy:   SessionPollPolicy,
	}
}

// Resolve はコールバックURLのクエリを検査し、セッションをポーリングして遷移する。
//
// error パラメータがあればポーリングせずにログインページへ遷移する。
// セッションが見つかれば /mypage へ、上限まで見つからなければ /login?error=oauth へ遷移する。
// 遷移は最大1回で、コンテキストがキャンセルされた場合は遷移しない。
func (r *CallbackResolver) Resolve(ctx context.Context, query url.Values, sessions SessionSource, nav Navigator) Outcome {
	out := Outcome{State: StateCheckingErrorParam}

	if code := query.Get("error"); code != "" {
		out.State = StateFailed
		out.Route = route.LoginWithError(code, query.Get("error_description"))
		return r.finish(ctx, out, nav)
	}

	out.State = StatePolling
	result, err := Poll(ctx, r.Policy, r.sleeper, "session",
		func(ctx context.Context) (*model.Session, bool, error) {
			session, err := sessions.GetSession(ctx)
			return session, session != nil, err
		},
	)
	out.Attempts = result.Attempts
	if err != nil {
		out.State = StateCanceled
		return r.finish(ctx, out, nav)
	}

	if result.Found {
		out.State = StateResolved
		out.Route = route.MyPage
	} else {
		out.State = StateFailed
		out.Route = route.LoginWithError(route.ErrorOAuth, "")
	}
	return r.finish(ctx, out, nav)
}

// finish は生存確認の上で遷移し、結果を記録する。
func (r *CallbackResolver) finish(ctx context.Context, out Outcome, nav Navigator) Outcome {
	if ctx.Err() != nil {
		out.State = StateCanceled
		out.Route = ""
	}

	r.recorder.RecordCallbackOutcome(string(out.State), out.Attempts)
	slog.InfoContext(ctx, "auth callback resolved",
		slog.String("state", string(out.State)),
		slog.String("route", out.Route),
		slog.Int("attempts", out.Attempts),
	)

	if out.State != StateCanceled {
		nav.Replace(out.Route)
	}
	return out
}
