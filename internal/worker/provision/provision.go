// Package provision はプロフィール行の非同期作成ジョブを提供する。
// ログイン直後のユーザーにはプロフィールが存在しないため、
// 短い間隔でプロフィール未作成ユーザーを検出して作成する。
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

// DefaultBatchSize は1回の実行で処理するユーザー数の上限。
const DefaultBatchSize = 100

// ProfileStore はプロビジョニングに必要なプロフィール操作。
type ProfileStore interface {
	ListUnprovisionedUsers(ctx context.Context, limit int) ([]*model.User, error)
	CreateFromUser(ctx context.Context, user *model.User) (bool, error)
}

// Recorder は作成件数の記録先。
type Recorder interface {
	RecordProfilesProvisioned(created int)
}

// Job はプロフィール未作成ユーザーのプロフィールを作成するジョブ。
// 作成は ON CONFLICT DO NOTHING で行うため、複数ワーカーが並行しても重複しない。
type Job struct {
	profiles  ProfileStore
	logger    *slog.Logger
	recorder  Recorder
	BatchSize int
}

// NewJob はJobの新しいインスタンスを生成する。recorderはnilでもよい。
func NewJob(profiles ProfileStore, logger *slog.Logger, recorder Recorder) *Job {
	return &Job{
		profiles:  profiles,
		logger:    logger,
		recorder:  recorder,
		BatchSize: DefaultBatchSize,
	}
}

// Run は未作成ユーザーを1バッチ分取得し、プロフィールを作成する。
// 個別の作成失敗はログに記録して残りの処理を続け、最後にまとめてエラーを返す。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	users, err := j.profiles.ListUnprovisionedUsers(ctx, j.BatchSize)
	if err != nil {
		return fmt.Errorf("プロフィール未作成ユーザーの取得に失敗: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	created, failed := 0, 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := j.profiles.CreateFromUser(ctx, u)
		if err != nil {
			failed++
			j.logger.Error("プロフィールの作成に失敗しました",
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			created++
		}
	}

	if j.recorder != nil {
		j.recorder.RecordProfilesProvisioned(created)
	}

	j.logger.Info("プロフィール作成ジョブが完了しました",
		slog.Int("user_count", len(users)),
		slog.Int("created_count", created),
		slog.Int("failed_count", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if failed > 0 {
		return fmt.Errorf("%d件のプロフィール作成に失敗しました", failed)
	}
	return nil
}
