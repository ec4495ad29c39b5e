package app

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hitoshi/inflect/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はinflectのルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして起動する。
// ログはwに出力する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "inflect",
		Short:         "米国GTM支援サービスのWebサーバーとワーカー",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          withConfig(w, CommandServe, runServe),
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Webサーバーを起動する",
			Args:  cobra.NoArgs,
			RunE:  withConfig(w, CommandServe, runServe),
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "プロフィール作成・サイト確認・セッション削除のジョブを起動する",
			Args:  cobra.NoArgs,
			RunE:  withConfig(w, CommandWorker, runWorker),
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "未適用のデータベースマイグレーションを実行する",
			Args:  cobra.NoArgs,
			RunE:  withConfig(w, CommandMigrate, runMigrate),
		},
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "稼働中のWebサーバーの /health を確認する",
			Args:  cobra.NoArgs,
			// 軽量サブコマンドのため、フル初期化をスキップする
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHealthcheck(healthcheckPort())
			},
		},
	)

	return root
}

// withConfig は設定を読み込んでからrunを実行するRunEを返す。
func withConfig(w io.Writer, command Command, run func(cfg *config.Config) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := Init(w)
		if err != nil {
			return err
		}

		slog.Info("starting application",
			slog.String("command", string(command)),
			slog.String("port", cfg.ServerPort),
			slog.String("base_url", cfg.BaseURL),
		)
		return run(cfg)
	}
}
