package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agenda/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。sql.DBが実装する。
// nilの場合はプロセス生存のみを健全とみなす（インメモリバックエンド用）。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// セッション
	Registry *Registry

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	SessionCodec      *middleware.SessionCodec

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメインサービス
	UserService   UserServiceInterface
	ClientService ClientServiceInterface
	TaskService   TaskServiceInterface

	// アバター
	AvatarGuard        AvatarGuardInterface
	AvatarProxyTimeout time.Duration
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF
//	→ (認証ルートのみ) Session → RateLimit(General)
//
// 認証ルート（/auth/*）はセッションミドルウェアの外に配置する。
// ログインのみIP単位の専用レート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.Registry, deps.SessionCodec, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.Registry)
	clientHandler := NewClientHandler(deps.ClientService, deps.Registry)
	taskHandler := NewTaskHandler(deps.TaskService, deps.Registry)
	calendarHandler := NewCalendarHandler(deps.Registry)
	avatarHandler := NewAvatarHandler(deps.Registry, deps.AvatarGuard, deps.AvatarProxyTimeout)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// CSRFトークン取得（SPAの初回ロード時に呼ばれる）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		// POST /auth/login - ログイン（IP単位の専用レート制限を追加）
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Registry, deps.SessionCodec))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", userHandler.Delete)
				r.Get("/avatar", avatarHandler.Get)
			})
		})

		// 顧客管理
		r.Route("/api/clients", func(r chi.Router) {
			r.Get("/", clientHandler.List)
			r.Post("/", clientHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", clientHandler.Update)
				r.Delete("/", clientHandler.Delete)
			})
		})

		// 顧客フィルタ選択
		r.Route("/api/selection", func(r chi.Router) {
			r.Get("/", clientHandler.GetSelection)
			r.Put("/", clientHandler.Select)
			r.Delete("/", clientHandler.ClearSelection)
		})

		// タスク管理
		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", taskHandler.Update)
				r.Patch("/completed", taskHandler.SetCompleted)
				r.Delete("/", taskHandler.Delete)
			})
		})

		// カレンダービュー
		r.Get("/api/calendar", calendarHandler.Get)
	})

	return r
}
