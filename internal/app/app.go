package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/inflect/internal/account"
	"github.com/hitoshi/inflect/internal/auth"
	"github.com/hitoshi/inflect/internal/bootstrap"
	"github.com/hitoshi/inflect/internal/config"
	"github.com/hitoshi/inflect/internal/database"
	"github.com/hitoshi/inflect/internal/diagnosis"
	"github.com/hitoshi/inflect/internal/handler"
	"github.com/hitoshi/inflect/internal/logger"
	"github.com/hitoshi/inflect/internal/metrics"
	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/pilot"
	"github.com/hitoshi/inflect/internal/repository"
	"github.com/hitoshi/inflect/internal/security"
	"github.com/hitoshi/inflect/internal/web"
	"github.com/hitoshi/inflect/internal/worker"
	"github.com/hitoshi/inflect/internal/worker/cleanup"
	"github.com/hitoshi/inflect/internal/worker/provision"
	"github.com/hitoshi/inflect/internal/worker/sitecheck"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドが無い場合はserveとして起動する。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newNotifier はセッション変更通知の配信方式を決める。
// REDIS_URLが設定されている場合はRedis Pub/Subで全プロセスに配信する。
// 返すclose関数は終了時に呼ぶ。
func newNotifier(ctx context.Context, cfg *config.Config) (auth.Notifier, func(), error) {
	if cfg.RedisURL == "" {
		return auth.NewLocalNotifier(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	notifier := auth.NewRedisNotifier(client, auth.DefaultNotifyChannel, slog.Default())
	if err := notifier.Start(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}

	slog.Info("session change notifications via redis", slog.String("channel", auth.DefaultNotifyChannel))
	return notifier, func() {
		notifier.Close()
		client.Close()
	}, nil
}

// newAttachmentStore は添付ファイルの保存先を決める。S3_BUCKETが未設定の場合はメモリに保存する。
func newAttachmentStore(ctx context.Context, cfg *config.Config) (diagnosis.AttachmentStore, error) {
	if !cfg.UseS3() {
		slog.Warn("S3_BUCKET is not set, attachments are kept in memory")
		return diagnosis.NewMemoryStore(), nil
	}

	store, err := diagnosis.NewS3Store(ctx, diagnosis.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		BaseEndpoint:    cfg.S3BaseEndpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init attachment store: %w", err)
	}
	return store, nil
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	credentialRepo := repository.NewPostgresCredentialRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	pilotRepo := repository.NewPostgresPilotRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 4. 認証サービスの初期化
	signer, err := auth.NewTokenSigner(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("invalid SESSION_SECRET: %w", err)
	}
	notifier, closeNotifier, err := newNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	googleProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		[]auth.OAuthProvider{googleProvider},
		auth.Stores{
			Users:       userRepo,
			Identities:  identRepo,
			Sessions:    sessionRepo,
			Credentials: credentialRepo,
		},
		signer,
		notifier,
		auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
			SiteURL:       cfg.BaseURL,
		},
	)

	// 5. ドメインサービスの初期化
	accountService := account.NewService(profileRepo, authService, cfg.PasswordMinLength)
	pilotService := pilot.NewService(pilotRepo, security.NewSSRFGuard(), security.NewTextSanitizer())

	attachments, err := newAttachmentStore(ctx, cfg)
	if err != nil {
		return err
	}
	diagnosisService := diagnosis.NewService(diagnosis.NewMockAnalyzer(cfg.DiagnosisDelay), attachments, collector, cfg.UploadMaxBytes)

	renderer, err := web.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitDiagnosis))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		Sessions:          authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		Renderer:     renderer,
		ProfileGuard: bootstrap.NewProfileGuard(profileRepo, nil, collector),

		AuthService:      authService,
		LoginStarter:     bootstrap.NewLoginInitiator(authService),
		CallbackResolver: bootstrap.NewCallbackResolver(nil, collector),
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:      cfg.CookieDomain,
			CookieSecure:      cfg.CookieSecure,
			SessionMaxAge:     cfg.SessionMaxAge,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		},

		AccountService:   accountService,
		PilotService:     pilotService,
		DiagnosisService: diagnosisService,
		UploadMaxBytes:   cfg.UploadMaxBytes,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// プロフィール作成・サイト確認・期限切れセッション削除の各ジョブを並行して周期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	pilotRepo := repository.NewPostgresPilotRepo(db)

	// 3. メトリクス（ワーカーは公開しない。ログと同じ値をカウンタに残す）
	collector := metrics.NewCollector(prometheus.NewRegistry())
	log := slog.Default()

	// 4. ジョブの初期化
	provisionJob := provision.NewJob(profileRepo, log, collector)

	checker := sitecheck.NewChecker(pilotRepo, security.NewSSRFGuard(), log, cfg.SiteCheckTimeout, cfg.SiteCheckMaxSize)
	siteScheduler := sitecheck.NewScheduler(pilotRepo, checker, log, collector, cfg.SiteCheckMaxConcurrent)

	cleanupJob := cleanup.NewCleanupJob(db, log, collector)

	slog.Info("worker starting",
		slog.Duration("provision_interval", cfg.ProvisionInterval),
		slog.Duration("site_check_interval", cfg.SiteCheckInterval),
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
		slog.Int("site_check_max_concurrent", cfg.SiteCheckMaxConcurrent),
	)

	// 5. 各ジョブをコンテキストのキャンセルまで実行する
	var wg sync.WaitGroup
	jobs := []struct {
		name     string
		interval time.Duration
		run      worker.JobFunc
	}{
		{"profile_provision", cfg.ProvisionInterval, provisionJob.Run},
		{"site_check", cfg.SiteCheckInterval, siteScheduler.RunOnce},
		{"session_cleanup", cfg.SessionCleanupInterval, cleanupJob.Run},
	}
	for _, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.RunPeriodically(ctx, log, job.name, job.interval, job.run)
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down worker...")
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckPort はSERVER_PORTを返す。未設定の場合は8080。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
