package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"bilingdash/internal/app/observability"
	"bilingdash/internal/assignment"
	"bilingdash/internal/auth"
	"bilingdash/internal/linking"
	"bilingdash/internal/question"
	"bilingdash/internal/repair"
	"bilingdash/internal/review"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(ctx context.Context, cfg Config, db *sql.DB) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	limiter := NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)
	authLimiter := NewIPRateLimiter(cfg.AuthFailuresPerMin, time.Minute)

	authSvc := auth.NewService(db, auth.ServiceConfig{})
	authHandler := auth.NewHandler(authSvc)

	questionSvc := question.NewService(db)
	questionHandler := question.NewHandler(questionSvc)

	linkSvc := linking.NewService(db, questionSvc, cfg.SectionOverrides)
	linkHandler := linking.NewHandler(linkSvc)

	reviewSvc := review.NewService(db, review.Config{PageSize: cfg.ReviewPageSize})
	reviewHandler := review.NewHandler(reviewSvc)

	assignSvc := assignment.NewService(db, reviewSvc, assignment.Config{
		ReviewerEmails: cfg.ReviewerEmails,
		ExamFilter:     cfg.AssignExamFilter,
		BulkTimeout:    cfg.BulkTimeout,
	})
	assignHandler := assignment.NewHandler(assignSvc)

	repairSvc, err := repair.NewService(ctx, repair.Config{
		APIKey:  cfg.AIAPIKey,
		BaseURL: cfg.AIBaseURL,
		Model:   cfg.AIModel,
		Timeout: cfg.AITimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init latex repair: %w", err)
	}
	repairHandler := repair.NewHandler(repairSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(collector.Middleware)
		api.Use(AuthFailureMiddleware(authLimiter))
		api.Use(RateLimitMiddleware(limiter))
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))
		api.Use(authHandler.RequireAuth)
		api.Use(collector.TagReviewer)

		api.Get("/auth/me", authHandler.Me)
		api.Get("/me/assignments", assignHandler.MyAssignments)

		api.Get("/papers/{paperID}", questionHandler.GetPaper)
		api.Get("/papers/{paperID}/review", reviewHandler.GetReviewPage)
		api.Get("/papers/{paperID}/progress", reviewHandler.Progress)
		api.Post("/papers/{paperID}/bulk-complete", assignHandler.BulkComplete)
		api.Post("/links/{linkID}/save", reviewHandler.Save)

		api.Get("/exams/{examID}/sections", questionHandler.ListSections)
		api.Post("/questions", questionHandler.CreateQuestion)
		api.Put("/questions/section", questionHandler.BulkUpdateSection)
		api.Put("/questions/{questionID}/section", questionHandler.UpdateSection)
		api.Get("/questions/{questionID}/history", questionHandler.History)

		api.Post("/text/fix-latex", repairHandler.FixLatex)

		api.Group(func(admin chi.Router) {
			admin.Use(authHandler.RequireRoles(auth.RoleAdmin))
			admin.Delete("/questions/{questionID}", questionHandler.DeleteQuestion)

			admin.Get("/admin/pairs", reviewHandler.ListPairs)
			admin.Post("/admin/pairs/link", linkHandler.Link)
			admin.Post("/admin/papers/{paperID}/clean", questionHandler.CleanPaper)
			admin.Post("/admin/assignments", assignHandler.Assign)
			admin.Get("/admin/reviewers", authHandler.ListReviewers)
			admin.Post("/admin/reviewers", authHandler.CreateReviewer)
			admin.Post("/admin/reviewers/import", authHandler.ImportReviewers)
			admin.Get("/admin/reviewers/summary", assignHandler.Summary)
			admin.Get("/admin/reports/progress.xlsx", assignHandler.ExportProgress)
		})
	})

	return r, nil
}
