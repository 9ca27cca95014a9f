package api

import (
	"net/http"
	"time"

	"script_console/internal/api/handler"
	"script_console/internal/api/middleware"
	"script_console/internal/app/execution"
	"script_console/internal/app/service"
	"script_console/internal/common/security"
	"script_console/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func NewRouter(
	logger *zap.Logger,
	authService *service.AuthService,
	scriptService *service.ScriptService,
	activityService *service.ActivityService,
	controller *execution.Controller,
	hub *execution.Hub,
	registry *prometheus.Registry,
	wsFrameInterval time.Duration,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)

	// Token from "Authorization: Bearer T", or ?jwt=T for browser websockets.
	r.Use(jwtauth.Verify(security.TokenAuth, jwtauth.TokenFromHeader, jwtauth.TokenFromQuery))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if registry != nil {
		r.Handle("/metrics", metrics.Handler(registry))
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		authHandler := handler.NewAuthHandler(authService)
		v1.Route("/auth", func(auth chi.Router) {
			auth.With(chiMiddleware.Timeout(30 * time.Second)).Group(authHandler.RegisterRoutes)
			auth.With(middleware.Authenticator).Group(authHandler.RegisterProtectedRoutes)
		})

		v1.Group(func(protected chi.Router) {
			protected.Use(middleware.Authenticator)

			scriptHandler := handler.NewScriptHandler(scriptService, controller, logger)
			protected.Route("/scripts", scriptHandler.RegisterRoutes)

			executionHandler := handler.NewExecutionHandler(controller)
			protected.Route("/executions", executionHandler.RegisterRoutes)

			activityHandler := handler.NewActivityHandler(activityService)
			protected.Route("/activity", activityHandler.RegisterRoutes)

			wsHandler := handler.NewWebSocketHandler(hub, logger, wsFrameInterval)
			protected.Get("/ws", wsHandler.HandleWebSocket)
		})
	})

	return r
}
