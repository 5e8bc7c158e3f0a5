package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/contentplanner/internal/config"
	"github.com/hitoshi/contentplanner/internal/database"
	"github.com/hitoshi/contentplanner/internal/generator"
	"github.com/hitoshi/contentplanner/internal/handler"
	"github.com/hitoshi/contentplanner/internal/logger"
	"github.com/hitoshi/contentplanner/internal/metrics"
	"github.com/hitoshi/contentplanner/internal/middleware"
	"github.com/hitoshi/contentplanner/internal/notify"
	"github.com/hitoshi/contentplanner/internal/planner"
	"github.com/hitoshi/contentplanner/internal/post"
	"github.com/hitoshi/contentplanner/internal/posting"
	"github.com/hitoshi/contentplanner/internal/repository"
	"github.com/hitoshi/contentplanner/internal/security"
	"github.com/hitoshi/contentplanner/internal/sitecontent"
	"github.com/hitoshi/contentplanner/internal/website"
	"github.com/hitoshi/contentplanner/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。planの結果はwに出力する。
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
		slog.String("planner_timezone", cfg.PlannerTimezone),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandPlan:
		return runPlan(cfg, w)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はserve・worker・planで共有する依存関係。
type components struct {
	postRepo  *repository.PostgresPostThemeRepo
	websites  *website.Service
	schedules *posting.Service
	posts     *post.Service
	job       *planner.Job
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// buildComponents はリポジトリ・外部クライアント・サービスを組み立てる。
func buildComponents(cfg *config.Config, db *sql.DB, reg prometheus.Registerer) *components {
	log := slog.Default()

	// 1. リポジトリの初期化
	websiteRepo := repository.NewPostgresWebsiteRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)
	postRepo := repository.NewPostgresPostThemeRepo(db)

	// 2. セキュリティサービスの初期化
	guard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. 外部クライアントの初期化
	gen := generator.NewClient(generator.Config{
		APIURL:     cfg.LLMAPIURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.LLMMaxRetries,
	}, sanitizer, log)
	fetcher := sitecontent.NewFetcher(guard, sanitizer, log, cfg.SiteFetchTimeout, cfg.SiteFetchMaxSize)

	// SMTP未設定の場合は通知を送らない
	var sender notify.Sender
	if cfg.SMTPEnabled() {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
	}
	notifier := notify.NewEmailNotifier(sender, log)

	collector := metrics.NewCollector(reg)

	// 4. ドメインサービスの初期化
	schedules := posting.NewService(websiteRepo, scheduleRepo, log)
	posts := post.NewService(websiteRepo, postRepo, schedules, fetcher, gen, collector, log)
	websites := website.NewService(websiteRepo, guard, log)

	// 5. バッチ計画の初期化
	p := planner.NewPlanner(postRepo, schedules, fetcher, gen, notifier, collector, log)
	job := planner.NewJob(websiteRepo, p, log, cfg.PlannerMaxConcurrent, cfg.PlannerLocation())

	return &components{
		postRepo:  postRepo,
		websites:  websites,
		schedules: schedules,
		posts:     posts,
		job:       job,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c := buildComponents(cfg, db, prometheus.DefaultRegisterer)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitGeneration),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),

		WebsiteService:  c.websites,
		ScheduleService: c.schedules,

		PostService: c.posts,
		SlotService: c.posts,
		PlanRunner:  c.job,
	})

	// LLM呼び出しを含むためWriteTimeoutは生成タイムアウトより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout*time.Duration(cfg.LLMMaxRetries+1) + cfg.SiteFetchTimeout + 15*time.Second,
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

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 計画ワーカーを起動し、計画曜日のサイトを1日1回計画する。
// 却下済みテーマのクリーンアップも同じ日次サイクルで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c := buildComponents(cfg, db, prometheus.DefaultRegisterer)

	cleanupJob := cleanup.NewCleanupJob(c.postRepo, slog.Default())
	if cfg.DeclinedRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.DeclinedRetentionDays
	}

	worker := planner.NewWorker(c.job, cfg.PlannerLocation(), slog.Default(), cleanupJob)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("planner_interval", cfg.PlannerInterval),
		slog.Int("max_concurrent", cfg.PlannerMaxConcurrent),
		slog.Int("declined_retention_days", cleanupJob.RetentionDays),
	)

	// 計画ワーカーをメインgoroutineで実行（ブロッキング）
	worker.Start(ctx, cfg.PlannerInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runPlan は今日の曜日を計画曜日とするサイトを1回だけ計画し、結果をJSONでwに出力する。
func runPlan(cfg *config.Config, w io.Writer) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c := buildComponents(cfg, db, prometheus.NewRegistry())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := c.job.RunForDay(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	return writePlanResults(w, results)
}

// writePlanResults はサイトごとの計画結果をJSON配列で出力する。
func writePlanResults(w io.Writer, results []planner.Result) error {
	if w == nil {
		w = os.Stdout
	}
	if results == nil {
		results = []planner.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to write plan results: %w", err)
	}
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
