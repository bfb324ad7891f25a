// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/agenda/internal/auth"
	"github.com/hitoshi/agenda/internal/client"
	"github.com/hitoshi/agenda/internal/config"
	"github.com/hitoshi/agenda/internal/database"
	"github.com/hitoshi/agenda/internal/handler"
	"github.com/hitoshi/agenda/internal/identity"
	"github.com/hitoshi/agenda/internal/logger"
	"github.com/hitoshi/agenda/internal/metrics"
	"github.com/hitoshi/agenda/internal/middleware"
	"github.com/hitoshi/agenda/internal/security"
	"github.com/hitoshi/agenda/internal/store"
	storememory "github.com/hitoshi/agenda/internal/store/memory"
	storepostgres "github.com/hitoshi/agenda/internal/store/postgres"
	"github.com/hitoshi/agenda/internal/task"
	"github.com/hitoshi/agenda/internal/user"
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

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_backend", cfg.StoreBackend),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストア接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. ストアと認証バックエンドの初期化
	var (
		docStore      store.Store
		accounts      identity.AccountRepository
		healthChecker handler.HealthChecker
	)

	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")

		pgStore, err := storepostgres.New(db, cfg.DatabaseURL, collector)
		if err != nil {
			return fmt.Errorf("failed to create store: %w", err)
		}
		defer pgStore.Close()

		docStore = pgStore
		accounts = identity.NewPostgresAccounts(db)
		healthChecker = db

	case config.StoreMemory:
		slog.Info("using in-memory store backend")
		docStore = storememory.New()
		accounts = identity.NewMemoryAccounts()
	}

	provider := identity.NewLocalProvider(accounts)

	// 3. セキュリティサービスの初期化
	avatarGuard := security.NewAvatarGuard(cfg.AvatarBaseURL)
	sanitizer := security.NewDescriptionSanitizer()

	// 4. ドメインサービスの初期化
	authService := auth.NewService(docStore, auth.Config{
		Domain:                 cfg.IdentityDomain,
		BootstrapAdminName:     cfg.BootstrapAdminName,
		BootstrapAdminPassword: cfg.BootstrapAdminPassword,
	}, collector, avatarGuard.URLFor)

	userService := user.NewService(provider, docStore, cfg.IdentityDomain, avatarGuard.URLFor)
	clientService := client.NewService(docStore, collector)
	taskService := task.NewService(docStore, sanitizer)

	// 5. セッションレジストリの初期化とスイープの起動
	sessions := handler.NewRegistry(provider, docStore, collector, collector, cfg.SessionIdleTTL)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	sweepDone := make(chan struct{})
	go func() {
		sessions.Run(sweepCtx, cfg.SessionSweepInterval)
		close(sweepDone)
	}()

	// 6. レート制限の初期化（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rateLimiterCfg.LoginBurst = cfg.RateLimitLogin
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Registry:       sessions,
		HealthChecker:  healthChecker,
		MetricsHandler: metrics.Handler(registry),

		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SessionCodec: middleware.NewSessionCodec(cfg.SessionSecret),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:   userService,
		ClientService: clientService,
		TaskService:   taskService,

		AvatarGuard:        avatarGuard,
		AvatarProxyTimeout: cfg.AvatarProxyTimeout,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 残存セッションの購読を破棄し、スイープループの終了を待つ
	cancelSweep()
	<-sweepDone

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreBackend != config.StorePostgres {
		return fmt.Errorf("migrate command requires the postgres store backend")
	}

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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
