package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/route"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	Sessions          SessionResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 画面
	Renderer     PageRenderer
	ProfileGuard ProfileGuard

	// 認証
	AuthService      AuthServiceInterface
	LoginStarter     LoginStarter
	CallbackResolver CallbackResolver
	AuthConfig       AuthHandlerConfig

	// アカウント・パイロット・診断
	AccountService   AccountServiceInterface
	PilotService     PilotServiceInterface
	DiagnosisService DiagnosisServiceInterface
	UploadMaxBytes   int64
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 運用エンドポイント（/health, /metrics）はセッション以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	pageHandler := NewPageHandler(deps.Renderer, deps.Sessions, deps.ProfileGuard, deps.DiagnosisService)
	authHandler := NewAuthHandler(deps.AuthService, deps.LoginStarter, deps.CallbackResolver, deps.AuthConfig)
	accountHandler := NewAccountHandler(deps.AccountService, deps.Sessions, deps.Renderer)
	pilotHandler := NewPilotHandler(deps.PilotService, deps.Renderer)
	diagnosisHandler := NewDiagnosisHandler(deps.DiagnosisService, deps.UploadMaxBytes)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- アプリケーション ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.NotFound(pageHandler.NotFound)

		// 画面
		r.Get(route.Home, pageHandler.Home)
		r.Get(route.Service, pageHandler.Service)
		r.Get(route.Pilot, pageHandler.Pilot)
		r.Get(route.Login, pageHandler.Login)
		r.Get(route.MyPage, pageHandler.MyPage)
		r.With(middleware.RequireSessionOrRedirect(route.Login)).Get(route.AIDiagnosis, pageHandler.AIDiagnosis)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login/google", authHandler.StartGoogle)
			r.Post("/login/password", authHandler.PasswordLogin)
			r.Get("/v1/callback", authHandler.ProviderCallback)
			r.Get("/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/session", authHandler.Session)
			r.Get("/events", authHandler.Events)
			r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
		})

		// アカウント（セッションはサービス層で入力検証の後に確認する）
		r.Post("/mypage/account", accountHandler.Save)
		r.Post("/mypage/plan", accountHandler.UpgradePlan)

		// パイロット申込
		r.Post("/pilot/basic", pilotHandler.GrantBasic)
		r.Post("/pilot/pro", pilotHandler.SubmitPro)

		// AI診断API
		r.Route("/api/diagnosis", func(r chi.Router) {
			r.Use(middleware.RequireSession())

			r.Get("/", diagnosisHandler.Get)
			r.With(deps.RateLimiter.DiagnosisMiddleware()).Post("/messages", diagnosisHandler.SendMessage)
			r.Post("/files", diagnosisHandler.UploadFile)
			r.Delete("/files", diagnosisHandler.ClearFiles)
			r.Delete("/files/{index}", diagnosisHandler.RemoveFile)
		})
	})

	return r
}
