package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zerebubuth/maproulette2/internal/config"
	authsvc "github.com/zerebubuth/maproulette2/internal/services/auth"
	reviewsvc "github.com/zerebubuth/maproulette2/internal/services/review"
	"github.com/zerebubuth/maproulette2/internal/transport/http/handlers"
)

type Dependencies struct {
	ReviewService *reviewsvc.Service
	JWTManager    *authsvc.JWTManager
	Logger        *zap.Logger
	Config        config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	reviewHandler := handlers.NewReviewHandler(
		deps.ReviewService,
		deps.Config.Review.DefaultPageSize,
		deps.Config.Review.DefaultClusterPoints,
	)

	r.Get("/health", healthHandler.Handle)

	r.Route("/api/v2", func(api chi.Router) {
		api.Use(AuthMiddleware(deps.JWTManager, deps.Logger))

		api.Get("/tasks/review", reviewHandler.ListReviewRequested)
		api.Get("/tasks/reviewed", reviewHandler.ListReviewed)
		api.Get("/tasks/review/next", reviewHandler.NextReview)
		api.Get("/tasks/review/metrics", reviewHandler.Metrics)
		api.Get("/tasks/review/clusters", reviewHandler.Clusters)
		api.Put("/task/{taskID}/review/start", reviewHandler.StartReview)
		api.Put("/task/{taskID}/review/cancel", reviewHandler.CancelReview)
	})
}
