package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-share/internal/config"
	"github.com/adanyl0v/go-todo-share/internal/delivery/http/v1"
	"github.com/adanyl0v/go-todo-share/internal/services"
	"github.com/adanyl0v/go-todo-share/internal/storage/memory"
	"github.com/adanyl0v/go-todo-share/internal/storage/postgres"
)

func MustListenAndServeHTTP() {
	cfg := config.Global()
	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	httpCfg := cfg.HTTP

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	registerRoutes(router)

	server := &http.Server{
		Addr:    net.JoinHostPort(httpCfg.Host, httpCfg.Port),
		Handler: router,
	}

	go func() {
		globalLogger.Info().
			Str("host", httpCfg.Host).
			Str("port", httpCfg.Port).
			Msg("setting up http server")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			globalLogger.Error().
				Err(err).
				Msg("failed to listen and serve http")
			panic(err)
		}
	}()

	// Wait for the interrupt signal to gracefully
	// shut down the server with a timeout.
	quit := make(chan os.Signal, 1)
	// kill (no params) by default sends syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be caught, so don't need to add it
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	globalLogger.Info().
		Msg("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()

	// Hijacked stream connections are not tracked by Shutdown. Closing
	// the hub closes them.
	StopRealtime()

	err := server.Shutdown(ctx)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to shutdown http server")
		panic(err)
	}
	globalLogger.Info().Msg("shut down http server")
}

func registerRoutes(router gin.IRouter) {
	cfg := config.Global()

	var (
		taskStore services.TaskStore
		userStore services.UserStore
	)
	healthChecks := make(map[string]v1.HealthCheck)
	if usePostgres() {
		taskStore = postgres.NewTaskStore(componentLogger("task_store"), globalPostgresPool)
		userStore = postgres.NewUserStore(componentLogger("user_store"), globalPostgresPool)
		healthChecks["postgres"] = globalPostgresPool.Ping
	} else {
		taskStore = memory.NewTaskStore()
		userStore = memory.NewUserStore()
	}
	if globalRedisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error {
			return globalRedisClient.Ping(ctx).Err()
		}
	}

	identityService, err := services.NewIdentityService(
		componentLogger("identity_service"),
		userStore,
		cfg.Identity.CacheSize,
	)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to create identity service")
		panic(err)
	}

	jwtCfg := cfg.JWT
	authService := services.NewAuthService(
		componentLogger("auth_service"),
		userStore,
		jwtCfg.Issuer,
		[]byte(jwtCfg.SigningKey),
		jwtCfg.AccessTokenTTL,
	)
	taskService := services.NewTaskService(
		componentLogger("task_service"),
		taskStore,
		identityService,
		changePublisher(),
	)

	v1Handler := v1.New(
		componentLogger("http_v1"),
		authService,
		taskService,
		globalHub,
		v1.StreamOptions{
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			MaxMessageSize: cfg.Realtime.MaxMessageSize,
		},
		healthChecks,
	)
	v1.RegisterRoutes(router.Group("/api/v1"), v1Handler)
}
