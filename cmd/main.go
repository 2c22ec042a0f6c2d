/**
 * @description
 * This is the main entry point for the commission-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * the message broker, the Redis tier cache, repositories, the core application services,
 * the threshold-check scheduler, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/learnsphere/commission-service/internal/api"
	"github.com/learnsphere/commission-service/internal/app"
	"github.com/learnsphere/commission-service/internal/config"
	"github.com/learnsphere/commission-service/internal/store"
	lsrabbit "github.com/learnsphere/commission-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting commission-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Align pool sizing with the rest of the platform's services.
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

	// Initialize the RabbitMQ producer to publish domain events. This service
	// only publishes, so a producer is enough; when the broker is unreachable
	// the service still boots and events degrade to logged no-ops.
	var publisher lsrabbit.Publisher
	rabbitProducer, err := lsrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &lsrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Tier tables change rarely, so reads go through Redis when it is
	// available. A missing or unreachable Redis degrades to direct repository
	// reads rather than preventing boot.
	var tierSource app.TierSource = app.NewRepositoryTierSource(repository)
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; tier caching disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; tier caching disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; tier caching disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				tierSource = app.NewRedisTierCache(
					redisClient,
					tierSource,
					cfg.TierCachePrefix,
					time.Duration(cfg.TierCacheTTLMinutes)*time.Minute,
				)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the core application services with their dependencies.
	tierEngine := app.NewTierEngine(repository, tierSource, publisher)
	commissionService := app.NewService(repository, tierEngine, publisher)
	reporter := app.NewRevenueReporter(repository, cfg.ProjectionWindowDays)
	monitor := app.NewAttendanceMonitor(repository, publisher, app.MonitorConfig{
		CheckWindow:     time.Duration(cfg.ThresholdCheckWindowMinutes) * time.Minute,
		HardCancelRatio: cfg.ThresholdHardCancelPercent / 100,
	})

	// Start the attendance threshold scheduler.
	schedLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	jobs := app.NewJobs(monitor, schedLogger, time.Duration(cfg.ThresholdJobTimeoutMinutes)*time.Minute)
	scheduler := app.NewScheduler(jobs, schedLogger, cfg.ThresholdCheckSchedule)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers.
	commissionHandlers := api.NewCommissionHandlers(commissionService, tierEngine, reporter, monitor)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.CommissionRoutes(commissionHandlers, cfg.JWTSecret))

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
