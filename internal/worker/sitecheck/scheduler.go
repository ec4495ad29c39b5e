// Package sitecheck はパイロット申込のWebサイト確認ジョブを提供する。
// 未確認の申込を定期的に取得し、semaphoreで並列数を制御しながら確認する。
package sitecheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

// DefaultBatchSize は1回の実行で確認する申込数の上限。
const DefaultBatchSize = 50

// PendingSource は確認待ちの申込を返す。
type PendingSource interface {
	ListPendingSiteChecks(ctx context.Context, limit int) ([]*model.PilotApplication, error)
}

// SiteChecker は1件の申込を確認する。
type SiteChecker interface {
	Check(ctx context.Context, app *model.PilotApplication) (Result, error)
}

// Recorder は確認結果の記録先。
type Recorder interface {
	RecordSiteCheck(reachable bool)
}

// Scheduler はサイト確認の並列実行を制御する。
type Scheduler struct {
	source         PendingSource
	checker        SiteChecker
	logger         *slog.Logger
	recorder       Recorder
	maxConcurrency int
	BatchSize      int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。recorderはnilでもよい。
func NewScheduler(
	source PendingSource,
	checker SiteChecker,
	logger *slog.Logger,
	recorder Recorder,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		source:         source,
		checker:        checker,
		logger:         logger,
		recorder:       recorder,
		maxConcurrency: maxConcurrency,
		BatchSize:      DefaultBatchSize,
	}
}

// RunOnce は確認待ちの申込を1バッチ取得し、並列で確認する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	apps, err := s.source.ListPendingSiteChecks(ctx, s.BatchSize)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		return nil
	}

	s.logger.Info("サイト確認サイクルを開始します",
		slog.Int("application_count", len(apps)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, app := range apps {
		if ctx.Err() != nil {
			wg.Wait()
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(a *model.PilotApplication) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.checker.Check(ctx, a)
			if err != nil {
				s.logger.Error("サイト確認に失敗しました",
					slog.String("application_id", a.ID),
					slog.String("error", err.Error()),
				)
				return
			}
			if s.recorder != nil {
				s.recorder.RecordSiteCheck(result.Reachable())
			}
		}(app)
	}

	wg.Wait()

	s.logger.Info("サイト確認サイクルが完了しました",
		slog.Int("application_count", len(apps)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
