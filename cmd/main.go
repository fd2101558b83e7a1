/**
 * @description
 * This is the main entry point for the agenda-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * schema migrations, message brokers, repositories, the core application service,
 * the seeding cron job and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: For the agenda seeding schedule.
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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/choferia/agenda-service/internal/api"
	"github.com/choferia/agenda-service/internal/app"
	"github.com/choferia/agenda-service/internal/config"
	"github.com/choferia/agenda-service/internal/store"
	rmrabbit "github.com/choferia/agenda-service/pkg/rabbitmq"
)

func main() {
	// Load an optional .env file before reading configuration.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url must be configured\" env=DATABASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting agenda-service\" port=%s", cfg.ServerPort)

	// Apply pending schema migrations before opening the pool.
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"migrations failed\" err=%v", err)
	}

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
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

	// Initialize the RabbitMQ producer to publish events. A broker outage at
	// startup degrades to the no-op fallback rather than blocking boot.
	var producer rmrabbit.Publisher
	eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis client for payment submission rate limiting.
	var redisClient *redis.Client
	if cfg.PaymentRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	var limiter app.RateLimiter
	if redisClient != nil {
		limiter = app.NewRedisPaymentRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}
	agendaService := app.NewService(repository, producer, limiter, cfg.PaymentRateLimitPerMinute)

	// Wire up the seeding consumer: back-office schedule changes arrive over
	// the agenda.events exchange.
	seedConsumer := app.NewSeedConsumer(repository)
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; seeding events disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()

		seedBindings := map[string]func([]byte) bool{
			"agenda.seed.day":            seedConsumer.HandleMessage,
			"agenda.base_amount.updated": seedConsumer.HandleMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(rmrabbit.AgendaEventsExchange, cfg.AgendaEventQueue, seedBindings); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"seed consumer start failed\" err=%v", err)
		} else {
			log.Println("level=info component=bootstrap msg=\"seed consumer started\"")
		}
	}

	// Schedule the nightly horizon materialization.
	seeder := app.NewSeeder(repository, cfg.SeedHorizonDays)
	cronRunner := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := cronRunner.AddFunc(cfg.SeedCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := seeder.MaterializeUpcomingDays(ctx); err != nil {
			log.Printf("level=error component=seeder msg=\"seeding run failed\" err=%v", err)
		}
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid seed cron spec\" spec=%q err=%v", cfg.SeedCronSpec, err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	// Initialize the API handlers.
	agendaHandlers := api.NewAgendaHandlers(agendaService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/agenda", api.AgendaRoutes(agendaHandlers, cfg.JWKSURL, cfg.CORSAllowedOrigins))

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
