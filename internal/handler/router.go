package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/contentplanner/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// サイト・スケジュール
	WebsiteService  WebsiteServiceInterface
	ScheduleService ScheduleServiceInterface

	// 投稿テーマ・計画
	PostService PostServiceInterface
	SlotService SlotServiceInterface
	PlanRunner  PlanRunner
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → RequestID → Recovery → Logging
//	  /api/*: Identity → RateLimit(General) [→ RateLimit(Generation)]
//
// /health と /metrics は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))

	websiteHandler := NewWebsiteHandler(deps.WebsiteService)
	scheduleHandler := NewScheduleHandler(deps.ScheduleService, deps.SlotService)
	postHandler := NewPostHandler(deps.PostService, deps.PlanRunner)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		generation := deps.RateLimiter.GenerationMiddleware()

		r.Route("/websites", func(r chi.Router) {
			r.Get("/", websiteHandler.ListWebsites)
			r.Post("/", websiteHandler.CreateWebsite)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", websiteHandler.GetWebsite)
				r.Patch("/", websiteHandler.UpdateWebsite)
				r.Delete("/", websiteHandler.DeleteWebsite)

				r.Route("/schedule", func(r chi.Router) {
					r.Get("/", scheduleHandler.GetSchedule)
					r.Put("/", scheduleHandler.PutPostingDays)
					r.Put("/frequency", scheduleHandler.PutFrequency)
					r.Post("/days/{day}/toggle", scheduleHandler.ToggleDay)
					r.Get("/next-slot", scheduleHandler.GetNextSlot)
					r.Get("/week", scheduleHandler.GetWeekStatus)
				})

				r.Get("/posts", postHandler.ListPosts)
				// LLMを呼び出すエンドポイントには生成系のレート制限を追加
				r.With(generation).Post("/posts/ideas", postHandler.GenerateIdeas)
				r.With(generation).Post("/plan", postHandler.RunPlan)
			})
		})

		r.Route("/posts/{id}", func(r chi.Router) {
			r.Patch("/", postHandler.EditPost)
			r.Delete("/", postHandler.DeletePost)
			r.Post("/approve", postHandler.ApprovePost)
			r.Post("/decline", postHandler.DeclinePost)
			r.Put("/status", postHandler.UpdateStatus)
		})
	})

	return r
}
