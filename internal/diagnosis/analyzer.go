// Package diagnosis はAI診断チャットの会話状態と、差し替え可能な分析バックエンドを提供する。
//
// 分析は現在モック実装のみで、固定の待機時間の後に定型文を返す。
// 実際のバックエンドは Analyzer を実装して差し替える。会話状態の管理側は変更不要。
package diagnosis

import (
	"context"
	"fmt"
	"time"
)

// DefaultMockDelay はモック分析の応答待ち時間。
const DefaultMockDelay = 700 * time.Millisecond

// Request は分析バックエンドへの入力。
type Request struct {
	Text        string
	Attachments []Attachment
}

// Analyzer は分析バックエンド。
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// MockAnalyzer は固定の待機時間の後に定型の診断サマリーを返す。
type MockAnalyzer struct {
	delay time.Duration
}

// NewMockAnalyzer はMockAnalyzerを生成する。delay が負の場合は0として扱う。
func NewMockAnalyzer(delay time.Duration) *MockAnalyzer {
	if delay < 0 {
		delay = 0
	}
	return &MockAnalyzer{delay: delay}
}

const mockSummary = `診断サマリー（モック）
- 成功確率スコア: 0.72
- 主なリスク: ポジショニング／チャネル仮説の不足
- 推奨アクション: ICPの明確化 → チャネル実験を3つ設計 → KPIトラッキング

（添付ファイル%d件の反映はバックエンド接続後に対応）`

// Analyze は delay だけ待機してから定型文を返す。
func (a *MockAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	timer := time.NewTimer(a.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}
	return fmt.Sprintf(mockSummary, len(req.Attachments)), nil
}

var _ Analyzer = (*MockAnalyzer)(nil)
