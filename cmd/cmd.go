package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ride-pool-backend/internal/config"
	"ride-pool-backend/internal/handlers"
	"ride-pool-backend/internal/middleware"
	"ride-pool-backend/internal/repository"
	"ride-pool-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// stores bundles the persistence backends the services run on
type stores struct {
	users  services.UserStore
	rides  services.RideStore
	tokens services.DeviceTokenStore
	close  func()
}

// app holds the wired services the router is built from
type app struct {
	users   *services.UserService
	rides   *services.RideService
	hub     *services.WSHub
	limiter *middleware.RateLimiter
	origins []string
}

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer st.close()

	var limiter *middleware.RateLimiter
	if cfg.Redis.URL != "" {
		rdb, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		limiter = middleware.NewRateLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		log.Info().Int("requests", cfg.RateLimit.Requests).Dur("window", cfg.RateLimit.Window).Msg("Rate limiting enabled")
	} else {
		log.Warn().Msg("Redis URL not set, rate limiting disabled")
	}

	// Push is optional; without it notifications only reach open sockets
	var push services.PushSender
	if cfg.APNs.KeyPath != "" {
		sender, err := services.NewAPNsSender(services.APNsConfig{
			KeyPath:    cfg.APNs.KeyPath,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs sender")
		}
		push = sender
	} else {
		log.Warn().Msg("APNs key not configured, push notifications disabled")
	}

	var avatars *services.AvatarService
	if cfg.AWS.S3Bucket != "" {
		avatars, err = services.NewAvatarService(ctx, st.users, services.S3Config{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create avatar service")
		}
	}

	// Initialize services
	wsHub := services.NewWSHub()
	dispatcher := services.NewDispatcher(st.tokens, push, wsHub)
	verifier := services.NewGoogleVerifier(services.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		HostedDomain: cfg.Google.HostedDomain,
	})
	a := &app{
		users:   services.NewUserService(st.users, st.tokens, verifier, avatars, cfg.JWT.Secret),
		rides:   services.NewRideService(st.rides, st.users, dispatcher),
		hub:     wsHub,
		limiter: limiter,
		origins: cfg.Server.AllowedOrigins,
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// newRouter mounts every route on a chi router
func newRouter(a *app) http.Handler {
	userHandler := handlers.NewUserHandler(a.users)
	rideHandler := handlers.NewRideHandler(a.rides)
	wsHandler := handlers.NewWebSocketHandler(a.hub, a.users)

	origins := a.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	r.Route("/user", func(r chi.Router) {
		r.Post("/create", userHandler.CreateUser)
		r.Post("/login", userHandler.Login)
		r.With(middleware.AuthMiddleware(a.users)).Post("/avatar", userHandler.RequestAvatarUpload)
	})

	r.Route("/ride", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(a.users))
		var mutating func(http.Handler) http.Handler
		if a.limiter != nil {
			mutating = a.limiter.Middleware
		}
		rideHandler.Routes(r, mutating)
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}

// openStores connects to Postgres and applies migrations, or builds the
// in-memory store when database.in_memory is set
func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	if cfg.InMemory {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		mem := repository.NewMemoryStore()
		return &stores{users: mem.Users(), rides: mem.Rides(), tokens: mem.DeviceTokens(), close: func() {}}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test database connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &stores{
		users:  repository.NewUserRepository(db),
		rides:  repository.NewRideRepository(db),
		tokens: repository.NewDeviceTokenRepository(db),
		close:  db.Close,
	}, nil
}

// connectRedis opens the client backing the rate limiter
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 5
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Redis connection established")
	return client, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
