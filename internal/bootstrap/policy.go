// Package bootstrap はOAuthログイン後のセッション確立と保護ページ表示までの流れを提供する。
//
// セッションやプロフィールは外部の認証・ワーカー処理によって非同期に作られるため、
// 取得は固定間隔・回数上限付きのポーリングで待ち合わせる。
// 各処理はリクエストのコンテキストを生存フラグとして扱い、
// キャンセル後は画面遷移もビューの生成も行わない。
package bootstrap

import (
	"context"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

// RetryPolicy は固定間隔ポーリングの回数と間隔。
type RetryPolicy struct {
	Attempts int
	Interval time.Duration
}

// MaxWait は全試行が空振りした場合の待機時間の合計。
func (p RetryPolicy) MaxWait() time.Duration {
	return time.Duration(p.Attempts) * p.Interval
}

var (
	// SessionPollPolicy はOAuthコールバック後のセッション待ち（250ms間隔で最大10回）。
	SessionPollPolicy = RetryPolicy{Attempts: 10, Interval: 250 * time.Millisecond}
	// ProfilePollPolicy は保護ページでのプロフィール待ち（200ms間隔で最大5回）。
	ProfilePollPolicy = RetryPolicy{Attempts: 5, Interval: 200 * time.Millisecond}
)

// Sleeper は固定時間の待機を抽象化する。
// 待機中にコンテキストがキャンセルされた場合はコンテキストのエラーを返す。
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc は関数をSleeperとして扱うアダプタ。
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep は f(ctx, d) を呼び出す。
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper は time.Timer による実時間の待機。
type TimerSleeper struct{}

// Sleep は d だけ待機する。
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SessionSource は現在のセッションを返す。セッションが無い場合は nil, nil。
type SessionSource interface {
	GetSession(ctx context.Context) (*model.Session, error)
}

// SessionSourceFunc は関数をSessionSourceとして扱うアダプタ。
type SessionSourceFunc func(ctx context.Context) (*model.Session, error)

// GetSession は f(ctx) を呼び出す。
func (f SessionSourceFunc) GetSession(ctx context.Context) (*model.Session, error) {
	return f(ctx)
}

// Navigator は名前付きルートへの置き換え遷移を行う。
type Navigator interface {
	Replace(route string)
}

// NavigatorFunc は関数をNavigatorとして扱うアダプタ。
type NavigatorFunc func(route string)

// Replace は f(route) を呼び出す。
func (f NavigatorFunc) Replace(route string) {
	f(route)
}

// Recorder はブートストラップの結果をメトリクスに記録する。
type Recorder interface {
	RecordCallbackOutcome(state string, attempts int)
	RecordProfileLookup(found bool, attempts int)
}

type nopRecorder struct{}

func (nopRecorder) RecordCallbackOutcome(string, int) {}
func (nopRecorder) RecordProfileLookup(bool, int)     {}
