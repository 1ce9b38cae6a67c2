package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/http/handlers"
	"github.com/finsight/riskdash-back/internal/http/middleware"
	"github.com/finsight/riskdash-back/internal/metrics"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	JWTSecret      string
	CORSOrigins    string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(deps.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.Trace(deps.Logger))
	router.Use(middleware.Instrument(deps.Metrics))

	router.Get("/healthz", deps.API.Health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	router.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Principal(deps.JWTSecret))
		r.Use(middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))

		r.Post("/uploads", deps.API.SubmitUpload)
		r.Get("/uploads/jobs", deps.API.ListJobs)
		r.Get("/uploads/jobs/{jobID}", deps.API.GetJob)
		r.Post("/uploads/jobs/{jobID}/cancel", deps.API.CancelJob)
		r.Delete("/uploads/jobs/{jobID}", deps.API.DeleteJob)

		r.Get("/predictions", deps.API.ListPredictions)
		r.Post("/predictions", deps.API.CreatePrediction)
		r.Post("/predictions/refresh", deps.API.RefreshPredictions)
		r.Put("/predictions/filter", deps.API.SetPredictionFilter)
		r.Delete("/predictions/{predictionID}", deps.API.DeletePrediction)
	})

	return router
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
