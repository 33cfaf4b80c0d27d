/**
 * @description
 * This is the main entry point for the compte-service. It is responsible for
 * initializing all components of the service, including configuration, the
 * database connection pool, the Redis client, the RabbitMQ producer, the
 * repository, the core application service, and the HTTP server. It wires
 * everything together and starts the service with graceful shutdown.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/joho/godotenv: Loads .env files in development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for cache, rate limiting and token revocation.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/banqueapi/compte-service/internal/api"
	"github.com/banqueapi/compte-service/internal/app"
	"github.com/banqueapi/compte-service/internal/config"
	"github.com/banqueapi/compte-service/internal/store"
	"github.com/banqueapi/compte-service/pkg/rabbitmq"
)

func main() {
	// Load a .env file when present; real deployments set the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("level=warn component=bootstrap msg=\"dotenv load failed\" err=%v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting compte-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Redis backs the query cache, the rate limiter and token revocation.
	// When it is absent the service still boots: caching and rate limiting
	// degrade, revocation falls back to the in-memory denylist.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; cache and rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; cache and rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; cache and rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the RabbitMQ producer to publish lifecycle events.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.FallbackProducer{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Token issuing and revocation. The Redis denylist survives restarts;
	// without Redis revocation is process local.
	var revoker app.TokenRevoker
	if redisClient != nil {
		revoker = app.NewRedisTokenRevoker(redisClient, cfg.RedisKeyPrefix)
	}
	tokens := app.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.TokenTTLSeconds)*time.Second, revoker)

	var cache *app.CompteCache
	var limiter app.RateLimiter
	if redisClient != nil {
		cache = app.NewCompteCache(
			redisClient,
			cfg.RedisKeyPrefix,
			time.Duration(cfg.CacheCompteTTLSecs)*time.Second,
			time.Duration(cfg.CacheListTTLSecs)*time.Second,
		)
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix, cfg.RateLimitPerDay)
	}

	// Initialize the core application service with its dependencies.
	service := app.NewService(repository, tokens, cache, producer, cfg.EventExchange)

	// Connectivity checks surfaced by GET /v1/health.
	health := api.HealthChecks{Database: dbpool.Ping}
	if redisClient != nil {
		health.Redis = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(service, health, cfg.Debug)
	router := api.Routes(handlers, service, limiter)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	// Block until a termination signal arrives, then drain in-flight
	// requests before exiting.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("level=info component=http msg=\"shutting down\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"graceful shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=http msg=\"server stopped\"")
}
