package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mosegray/recordvault/internal/auth"
	"github.com/mosegray/recordvault/internal/config"
	"github.com/mosegray/recordvault/internal/http/handlers"
	"github.com/mosegray/recordvault/internal/http/middlewares"
	"github.com/mosegray/recordvault/internal/notifications"
	"github.com/mosegray/recordvault/internal/observability"
	"github.com/mosegray/recordvault/internal/otp"
	"github.com/mosegray/recordvault/internal/redisclient"
	"github.com/mosegray/recordvault/internal/repo/postgres"
)

const maxBodyBytes = 1 << 20 // 1 MiB is plenty for credential payloads

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, rds *redisclient.Client, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// metrics registry with the standard process/runtime collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(registry)

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("recordvault-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(middlewares.RequireJSON())
	r.Use(prom.GinHandleMiddleware())

	// health + metrics

	dbPing := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	redisPing := func() error {
		if rds == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return rds.Ping(ctx)
	}

	h := handlers.NewHealthHandler(dbPing, redisPing)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// wire up the auth core

	jwtManager := auth.NewManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	usersRepo := postgres.NewUsersRepo(pool, prom)

	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, prom, cfg)
	adminHandler := handlers.NewAdminHandler(usersRepo)
	resetHandler := handlers.NewPasswordResetHandler(
		usersRepo,
		usersRepo,
		otp.NewStore(rds.Raw()),
		notifications.NewLogNotifier(),
		prom,
	)

	authMw := middlewares.NewAuthMiddleware(jwtManager)

	// credential endpoints get a tight per-IP budget
	credLimiter := middlewares.NewRateLimiter(10, time.Minute)
	limitByIP := credLimiter.RateLimiterMiddleware(middlewares.KeyByIP)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", limitByIP, authHandler.Register)
		authGroup.POST("/login", limitByIP, authHandler.Login)
		authGroup.GET("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/forgot-password", limitByIP, resetHandler.ForgotPassword)
		authGroup.POST("/reset-password", limitByIP, resetHandler.ResetPassword)

		authGroup.GET("/me", authMw.RequireAuth(), authHandler.Me)
		authGroup.PATCH("/update-username", authMw.RequireAuth(), authHandler.UpdateUsername)

		admin := authGroup.Group("", authMw.RequireAuth(), authMw.RequireRole("admin"))
		admin.GET("/all-users", adminHandler.ListUsers)
		admin.GET("/user-count", adminHandler.UserCount)
	}

	log.Debug("router configured", "env", cfg.Env, "cors_origins", len(cfg.CORSOrigins))

	return r
}
