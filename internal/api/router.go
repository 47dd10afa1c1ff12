package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"

	"competenest/internal/api/handler"
	"competenest/internal/app/service"
	"competenest/internal/common/security"
	"competenest/internal/notify"
	"competenest/internal/platform/config"
	"competenest/internal/telemetry"
)

func NewRouter(
	submissionService *service.SubmissionService,
	contestService *service.ContestService,
	leaderboardService *service.LeaderboardService,
	aggregationService *service.AggregationService,
	hub *notify.Hub,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, config.AppConfig.MetricsPath, telemetry.Handler())
	r.Get("/ws", hub.ServeWS)

	r.Route("/api", func(api chi.Router) {
		callbackHandler := handler.NewCallbackHandler(aggregationService)
		submissionHandler := handler.NewSubmissionHandler(submissionService)
		api.Route("/submission", func(sr chi.Router) {
			// Judge callbacks are unauthenticated; user reads require a token.
			callbackHandler.RegisterRoutes(sr)
			submissionHandler.RegisterRoutes(sr)
		})

		api.Route("/problem", submissionHandler.RegisterProblemRoutes)

		contestHandler := handler.NewContestHandler(contestService, leaderboardService)
		api.Route("/contest", contestHandler.RegisterRoutes)
	})

	return r
}
