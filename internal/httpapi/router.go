package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/obsrv/monitor/internal/config"
	"github.com/obsrv/monitor/internal/repository"
	"github.com/obsrv/monitor/internal/scheduler"
)

const operatorRateLimitPerMinute = 60

// NewRouter builds the C12 operator control surface: a chi router carrying
// RequestID/RealIP/Logger/Recoverer, bearer auth, and a per-token rate
// limit, with the four operations registered as Huma operations for
// consistent request validation and OpenAPI docs.
func NewRouter(cfg *config.Config, repos *repository.Repositories, sched *scheduler.Scheduler, logger *slog.Logger) http.Handler {
	h := NewHandlers(repos, sched, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Group(func(r chi.Router) {
		r.Use(OperatorAuth(cfg))
		r.Use(httprate.Limit(operatorRateLimitPerMinute, time.Minute,
			httprate.WithKeyFuncs(rateLimitKey)))

		humaConfig := huma.DefaultConfig("Monitor Operator API", "1.0.0")
		humaConfig.Info.Description = "Internal operator control surface for manual crawl triggers and website recovery."
		humaConfig.Servers = []*huma.Server{{URL: cfg.BaseURL, Description: "Operator API"}}
		humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"bearerAuth": {Type: "http", Scheme: "bearer"},
		}
		api := humachi.New(r, humaConfig)

		huma.Post(api, "/internal/v1/websites/{id}/crawl", h.TriggerCrawl)
		huma.Post(api, "/internal/v1/websites/{id}/resume", h.ResumeWebsite)
		huma.Get(api, "/internal/v1/websites/{id}/crawl-logs", h.ListCrawlLogs)
		huma.Get(api, "/internal/v1/webhook-deliveries", h.ListWebhookDeliveries)
	})

	return router
}
