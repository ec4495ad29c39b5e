package bootstrap

import (
	"context"
	"log/slog"
)

// FetchFunc は1回分の取得処理。対象が無い場合は ok=false を返す。
type FetchFunc[T any] func(ctx context.Context) (value T, ok bool, err error)

// PollResult はポーリングの結果。
type PollResult[T any] struct {
	Value    T
	Found    bool
	Attempts int
}

// Poll は policy に従って fetch を繰り返し、最初に見つかった値を返す。
//
// 空振りのたびに policy.Interval だけ待機するため、全試行が空振りした場合の
// 待機時間は policy.MaxWait() になる。fetch のエラーはログに記録して空振りとして扱う。
// 返すエラーはコンテキストのキャンセルのみ。
func Poll[T any](ctx context.Context, policy RetryPolicy, sleeper Sleeper, label string, fetch FetchFunc[T]) (PollResult[T], error) {
	var result PollResult[T]

	for result.Attempts < policy.Attempts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Attempts++
		value, ok, err := fetch(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		if err != nil {
			slog.WarnContext(ctx, "poll attempt failed",
				slog.String("target", label),
				slog.Int("attempt", result.Attempts),
				slog.String("error", err.Error()),
			)
		} else if ok {
			result.Value = value
			result.Found = true
			return result, nil
		}

		if err := sleeper.Sleep(ctx, policy.Interval); err != nil {
			return result, err
		}
	}

	return result, nil
}
