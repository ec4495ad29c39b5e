package sitecheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/security"
)

// ResultStore はサイト確認結果の記録先。
type ResultStore interface {
	// MarkSiteChecked はstatusCodeが0の場合は取得失敗として記録する。
	MarkSiteChecked(ctx context.Context, id string, statusCode int, title string, checkedAt time.Time) error
}

// Result は1件のサイト確認結果。
type Result struct {
	StatusCode int
	Title      string
}

// Reachable はサイトが2xxを返したかを返す。
func (r Result) Reachable() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Checker はパイロット申込のWebサイトを取得し、ステータスとタイトルを記録する。
// 接続先はSSRF対策済みのクライアントでのみアクセスする。
type Checker struct {
	store       ResultStore
	guard       security.URLGuard
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	now         func() time.Time
}

// NewChecker はCheckerの新しいインスタンスを生成する。
func NewChecker(
	store ResultStore,
	guard security.URLGuard,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Checker {
	return &Checker{
		store:       store,
		guard:       guard,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// Check はWebサイトを取得して結果を記録する。
// 検証失敗や接続失敗も「確認済み（ステータス不明）」として記録し、再試行しない。
// 記録自体に失敗した場合のみエラーを返す。
func (c *Checker) Check(ctx context.Context, app *model.PilotApplication) (Result, error) {
	start := time.Now()

	result, err := c.fetch(ctx, app.Website)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		c.logger.Warn("Webサイトの確認に失敗しました",
			slog.String("application_id", app.ID),
			slog.String("website", app.Website),
			slog.String("error", err.Error()),
		)
	}

	if err := c.store.MarkSiteChecked(ctx, app.ID, result.StatusCode, result.Title, c.now()); err != nil {
		return result, fmt.Errorf("サイト確認結果の記録に失敗: %w", err)
	}

	c.logger.Info("Webサイトを確認しました",
		slog.String("application_id", app.ID),
		slog.Int("http_status", result.StatusCode),
		slog.Bool("has_title", result.Title != ""),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}

func (c *Checker) fetch(ctx context.Context, website string) (Result, error) {
	if err := c.guard.ValidateURL(website); err != nil {
		return Result{}, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, website, nil)
	if err != nil {
		return Result{}, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Inflect/1.0 SiteCheck")
	req.Header.Set("Accept", "text/html, application/xhtml+xml, */*;q=0.8")

	resp, err := c.guard.NewSafeClient(c.timeout).Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	result := Result{StatusCode: resp.StatusCode}
	if !result.Reachable() {
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return result, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	result.Title = ExtractTitle(body)
	return result, nil
}
