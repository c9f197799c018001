package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/daijir/scripture-habit/internal/auth"
	"github.com/daijir/scripture-habit/internal/config"
	"github.com/daijir/scripture-habit/internal/database"
	"github.com/daijir/scripture-habit/internal/handlers"
	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/push"
	"github.com/daijir/scripture-habit/internal/routes"
	"github.com/daijir/scripture-habit/internal/session"
	"github.com/daijir/scripture-habit/internal/sidesvc"
	"github.com/daijir/scripture-habit/internal/store/mongostore"
	"github.com/daijir/scripture-habit/pkg/clientip"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	if cfg.JWTSecret == "your-secret-key-change-in-production" {
		if cfg.IsProduction() {
			log.Fatal("JWT_SECRET must be set in production")
		}
		log.Println("⚠️  WARNING: JWT_SECRET not set, using the development default")
	}
	clientip.TrustForwarded = cfg.TrustProxy

	// Connect to Redis
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Connect to MongoDB
	log.Printf("Connecting to MongoDB...")
	log.Printf("MongoDB URI: %s", maskURI(cfg.MongoURI))
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Println("Troubleshooting tips:")
		log.Println("1. Check if your IP is whitelisted in MongoDB Atlas")
		log.Println("2. Verify your connection string format (should use mongodb+srv:// for Atlas)")
		log.Println("3. Check if the cluster is running (not paused)")
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	docs := mongostore.New(database.DB, database.RedisClient)
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := docs.EnsureIndexes(indexCtx); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB indexes: %v", err)
	} else {
		log.Println("✅ MongoDB indexes ensured")
	}
	cancelIndex()

	// Push registry: Postgres when configured, in memory otherwise
	var registry push.Registry
	if cfg.PostgresURI != "" {
		log.Printf("Connecting to PostgreSQL...")
		if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
			log.Fatal("Failed to connect to PostgreSQL:", err)
		}
		defer database.DisconnectPostgres()
		registry = push.NewPostgresRegistry(database.PostgresDB)
	} else {
		log.Println("⚠️  WARNING: POSTGRES_URI not set. Push registrations are kept in memory")
		registry = push.NewMemoryRegistry()
	}

	cache := kv.NewRedisStore(database.RedisClient)
	side := sidesvc.New(cfg.SideServiceURL, sidesvc.WithPreviewTTL(cfg.PreviewTTL))
	defer side.Close()
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)

	coord := mutation.New(docs, side)
	handlers.Init(handlers.Deps{
		Store:    docs,
		KV:       cache,
		Coord:    coord,
		Side:     side,
		Tokens:   tokens,
		Sessions: auth.NewRedisSessions(database.RedisClient),
		Push:     push.NewService(registry, cache),
		Session: session.Options{
			Debounce:      cfg.ScrollDebounce,
			MessageWindow: cfg.MessageWindow,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	})
	log.Printf("✅ Side service at %s", cfg.SideServiceURL)

	// Setup router
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.SecurityHeaders)
	if cfg.IsProduction() {
		r.Use(middleware.RedisRateLimit(database.RedisClient))
		log.Println("✅ Production rate limiting enabled")
	}

	// Health check (no auth)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := database.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !database.Healthy(status) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	routes.SetupRoutes(r, tokens)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("🚀 Scripture Habit backend running on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  WARNING: shutdown: %v", err)
	}
}

// maskURI hides the password of a connection string for logging.
func maskURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return uri
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return uri
	}
	return scheme + "://" + user + ":***@" + host
}
