package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/auth"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/cache"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/config"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/http/handlers"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/http/middlewares"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/observability"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, denylist *auth.Denylist, prom *observability.Prom, reg *prometheus.Registry, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" && cfg.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers.RegisterValidators()

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(otelgin.Middleware("user-service"))

	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	// health + metrics

	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	// wire up the user surface

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	usersRepo := postgres.NewUsersRepo(pool, prom)
	listCache := cache.NewUserList(5 * time.Second)

	// redis is optional in tests; a typed nil must not leak into the interfaces
	var revoker handlers.TokenRevoker
	var revoked middlewares.RevocationChecker

	if denylist != nil {
		revoker = denylist
		revoked = denylist
	}

	usersHandler := handlers.NewUsersHandler(usersRepo, jwtManager, revoker, listCache, cfg.CookieName)
	authMw := middlewares.NewAuthMiddleware(jwtManager, revoked, cfg.CookieName)

	// shared limiter for the credential endpoints
	credLimiter := middlewares.NewRateLimiter(10, time.Minute)

	u := r.Group("/user")

	u.GET("", usersHandler.ListUsers)
	u.GET("/me", authMw.RequireAuth(), usersHandler.Me)
	u.GET("/:id", usersHandler.GetUser)
	u.POST("/createUser", credLimiter.Middleware(middlewares.KeyByIP), usersHandler.CreateUser)
	u.POST("/login", credLimiter.Middleware(middlewares.KeyByIP), usersHandler.Login)
	u.POST("/logout", authMw.RequireAuth(), usersHandler.Logout)
	u.POST("/changePassword", authMw.RequireAuth(), usersHandler.ChangePassword)
	u.PUT("/updateUser/:id", authMw.RequireAuth(), usersHandler.UpdateUser)
	u.DELETE("/deleteUser/:id", authMw.RequireAuth(), usersHandler.DeleteUser)
	u.PUT("/:id/role", authMw.RequireAuth(), authMw.RequireRoles("admin"), usersHandler.SetRole)

	log.Debug("router configured", "routes", len(r.Routes()))

	return r
}
