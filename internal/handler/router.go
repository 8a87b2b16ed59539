package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/workdesk/internal/gate"
	"github.com/hitoshi/workdesk/internal/middleware"
	"github.com/hitoshi/workdesk/internal/records"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ゲート
	Gate              *gate.Gate
	SessionProvider   gate.SessionProvider
	GateConfig        middleware.AccessGateConfig
	RetryAfterSeconds int

	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	HSTS              bool

	// 監視
	HealthChecker HealthChecker
	Metrics       http.Handler // nilの場合 /metrics を公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// レコード
	RecordStore records.Store
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアスタック:
//
//	RequestID → SecurityHeaders → Logging → Recovery → CORS
//
// ページ（/chat, /dashboard）はAccessGate、API（/api/*）はAPIGate → CSRF → RateLimit(General)
// を通す。認証ルート（/auth/*）とヘルスチェックはゲートの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryAfter := deps.RetryAfterSeconds
	if retryAfter <= 0 {
		retryAfter = 2
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	pageHandler := NewPageHandler()
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	recordHandler := NewRecordHandler(deps.RecordStore)

	// --- ゲート不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.SignInMiddleware()).Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/session", NewSessionHandler(deps.SessionProvider))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, deps.Gate.ReturnPath(), http.StatusFound)
	})

	// --- ページ（AccessGate配下） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAccessGateMiddleware(deps.Gate, deps.GateConfig))

		r.Get("/chat", pageHandler.Chat)
		r.Get("/dashboard", pageHandler.Dashboard)
	})

	// --- API（APIGate配下） ---
	// ミドルウェアスタック: APIGate → CSRF → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewAPIGateMiddleware(deps.Gate, retryAfter))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// ユーザー管理
		r.Delete("/users/me", userHandler.Withdraw)

		// レコード管理
		r.Route("/records/{collection}", func(r chi.Router) {
			r.Post("/", recordHandler.Create)
			r.Get("/{id}", recordHandler.Get)
			r.Delete("/{id}", recordHandler.Delete)
		})
	})

	return r
}
