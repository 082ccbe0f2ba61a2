package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tastiest/functions/internal/analytics"
	"github.com/tastiest/functions/internal/cms"
	"github.com/tastiest/functions/internal/config"
	"github.com/tastiest/functions/internal/database"
	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/handler"
	"github.com/tastiest/functions/internal/horus"
	"github.com/tastiest/functions/internal/identity"
	"github.com/tastiest/functions/internal/logger"
	"github.com/tastiest/functions/internal/mailer"
	"github.com/tastiest/functions/internal/metrics"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/payments"
	"github.com/tastiest/functions/internal/repository"
	"github.com/tastiest/functions/internal/security"
	"github.com/tastiest/functions/internal/worker/followup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込み前にログを使えるようにする
	log := logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level := logger.ParseLevel(cfg.LogLevel); level != slog.LevelInfo {
		log = logger.SetupDefault(w, level)
	}
	return cfg, log, nil
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

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("document_store", cfg.DocumentStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, log)
	case CommandFollowup:
		return runFollowup(ctx, cfg, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// documentBackend はフィールドの読み書きと走査の両方を提供するストア。
type documentBackend interface {
	document.Store
	document.Scanner
}

// openDatabase はPostgreSQLに接続し、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openDocumentStore はDOCUMENT_STOREに応じたストアを返す。
// 返り値のclose関数は常に非nil。
func openDocumentStore(ctx context.Context, cfg *config.Config, db *sql.DB) (documentBackend, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.DocumentStore {
	case config.StoreMemory:
		return document.NewMemoryStore(), noop, nil
	case config.StoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, noop, fmt.Errorf("failed to ping mongodb: %w", err)
		}
		return document.NewMongoStore(client.Database(cfg.MongoDatabase)), client.Disconnect, nil
	default:
		return document.NewPostgresStore(db), noop, nil
	}
}

// newProcessor は決済ゲートウェイを返す。鍵が未設定の場合は常に失敗する実装を返す。
func newProcessor(cfg *config.Config, log *slog.Logger) (payments.Processor, error) {
	if !cfg.PaymentsEnabled() {
		log.Warn("omise keys are not set, payments are disabled")
		return payments.Unavailable{}, nil
	}
	return payments.NewGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey, log)
}

// newSink はアナリティクスの送信先を返す。AMQP_URLが未設定の場合はログに出力する。
func newSink(cfg *config.Config, log *slog.Logger) (analytics.Sink, error) {
	if cfg.AMQPURL == "" {
		log.Warn("AMQP_URL is not set, analytics events are logged only")
		return analytics.NewLogSink(log), nil
	}
	return analytics.NewPublisher(cfg.AMQPURL, cfg.AnalyticsExchange)
}

// newSender はメール送信を返す。SMTP_HOSTが未設定の場合はログに出力する。
func newSender(cfg *config.Config, log *slog.Logger) (mailer.Sender, error) {
	if !cfg.MailEnabled() {
		log.Warn("SMTP_HOST is not set, mail is logged only")
		return mailer.NewLogSender(log), nil
	}
	return mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, log)
}

// newCMSHandler はContentfulが設定されている場合のみCMS同期ハンドラーを返す。
// 外部への通信はSSRF対策済みのクライアントで行う。
func newCMSHandler(cfg *config.Config, store document.Store, collector *metrics.Collector, log *slog.Logger) *handler.CMSHandler {
	if !cfg.CMSEnabled() {
		return nil
	}
	guard := security.NewURLGuard()
	client := cms.NewClient(cms.Config{
		SpaceID:     cfg.ContentfulSpaceID,
		Environment: cfg.ContentfulEnvironment,
		AccessToken: cfg.ContentfulAccessToken,
	}, guard.NewOutboundClient(cfg.RPCTimeout), security.NewContentSanitizer(), guard, log)
	return handler.NewCMSHandler(client, store, collector)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. 永続化
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connection established")

	store, closeStore, err := openDocumentStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore(context.Background())

	accounts := repository.NewPostgresAccountRepo(db)

	// 2. 認証
	verifier := identity.NewTokenVerifier(cfg.AuthTokenSecret, cfg.AuthTokenIssuer)
	resolver := identity.NewResolver(identity.NewProvider(verifier, accounts), log)
	issuer := identity.NewTokenIssuer(cfg.AuthTokenSecret, cfg.AuthTokenIssuer)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 外部サービス
	processor, err := newProcessor(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize payments: %w", err)
	}
	sink, err := newSink(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize analytics: %w", err)
	}
	sender, err := newSender(cfg, log)
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("failed to initialize mailer: %w", err)
	}
	tracker := analytics.NewTracker(sink, log, 0)
	rpc := horus.NewClient(cfg.HorusBaseURL, cfg.HorusToken, &http.Client{Timeout: cfg.RPCTimeout}, log).
		WithObserver(collector)

	// 5. ルーター
	limiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitPublic))
	defer limiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            log,
		Resolver:          resolver,
		ServiceToken:      cfg.FunctionsToken,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		StatusRecorder:    collector,
		Invocations:       collector,
		MetricsHandler:    metrics.Handler(registry),
		HealthCheck:       db.PingContext,

		Users: handler.NewUserHandler(store, accounts, resolver, processor, sender, issuer, tracker, collector,
			handler.UserHandlerConfig{
				PasswordResetURL: cfg.PasswordResetURL,
				PasswordResetTTL: cfg.PasswordResetTTL,
			}),
		Payments: handler.NewPaymentHandler(store, processor, tracker, collector),
		Orders: handler.NewOrderHandler(store, processor, rpc, sender, tracker, collector,
			handler.OrderHandlerConfig{
				PlatformFeeBps:     cfg.PlatformFeeBps,
				AbandonedCartAfter: cfg.AbandonedCartAfter,
			}),
		CMS:       newCMSHandler(cfg, store, collector, log),
		Analytics: handler.NewAnalyticsHandler(tracker, resolver),
		Support:   handler.NewSupportHandler(rpc, store),
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := tracker.Flush(shutdownCtx); err != nil {
		log.Warn("failed to flush analytics events", slog.String("error", err.Error()))
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runFollowup はフォローアップジョブを1回実行する。
// cronなど外部のスケジューラから定期的に起動する。関数の呼び出しにはサービストークンを使う。
func runFollowup(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, closeStore, err := openDocumentStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore(context.Background())

	functions := horus.NewClient(cfg.FunctionsBaseURL, cfg.FunctionsToken, &http.Client{Timeout: cfg.RPCTimeout}, log)
	return followup.NewFollowupJob(store, functions, log).Run(ctx)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
