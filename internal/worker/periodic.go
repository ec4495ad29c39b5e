// Package worker はバックグラウンドジョブの共通処理を提供する。
// 各ジョブはサブパッケージに置き、実行ループのみここで共有する。
package worker

import (
	"context"
	"log/slog"
	"time"
)

// JobFunc は1回分のジョブ処理。
type JobFunc func(ctx context.Context) error

// RunPeriodically は起動直後に1回、その後interval間隔でjobを実行する。
// コンテキストがキャンセルされるまでブロックする。
// ジョブのエラーはログに記録し、次の周期で再実行する。
func RunPeriodically(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, job JobFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("ジョブを開始しました",
		slog.String("job", name),
		slog.Duration("interval", interval),
	)

	runOnce(ctx, logger, name, job)

	for {
		select {
		case <-ctx.Done():
			logger.Info("ジョブを停止しました", slog.String("job", name))
			return
		case <-ticker.C:
			runOnce(ctx, logger, name, job)
		}
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, name string, job JobFunc) {
	if ctx.Err() != nil {
		return
	}
	if err := job(ctx); err != nil {
		logger.Error("ジョブの実行に失敗しました",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
	}
}
