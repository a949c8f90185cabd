package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"diary/internal/api"
	"diary/internal/auth"
	"diary/internal/config"
	"diary/internal/logger"
	"diary/internal/mcp"
	"diary/internal/middleware"
	"diary/internal/store/sqlstore"
	"diary/internal/web"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sweepInterval = 5 * time.Minute

func main() {
	initDB := flag.Bool("initdb", false, "create the schema and exit")
	flag.Parse()

	bootLog := logger.NewWriter(os.Stderr, logger.ERROR)
	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatalf("%v", err)
	}

	log, err := logger.New(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		bootLog.Fatalf("init logger: %v", err)
	}
	defer log.Close()

	store, err := sqlstore.New(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *initDB {
		log.Infof("Initialized the database (%s)", cfg.DBDriver)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sessionStore auth.SessionStore
	var memStore *auth.MemoryStore
	switch cfg.SessionStore {
	case "redis":
		client, err := auth.NewRedisClient(ctx, cfg.RedisURI)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		sessionStore = auth.NewRedisStore(client, cfg.SessionTTL)
	default:
		memStore = auth.NewMemoryStore(cfg.SessionTTL)
		sessionStore = memStore
	}
	sessions := auth.NewManager(auth.NewCookieCodec(cfg.SecretKey, cfg.SessionTTL), sessionStore)

	pages, err := web.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	creds := auth.Credentials{Username: cfg.Username, Password: cfg.Password, PasswordHash: cfg.PasswordHash}
	handlers := api.NewHandlers(store, sessions, creds, pages, log)

	limiter := middleware.NewIPRateLimiter(cfg.LoginRateRPS, cfg.LoginRateBurst)
	router := api.NewRouter(handlers, api.RouterOptions{
		Sessions:     sessions,
		Log:          log,
		RequireAuth:  cfg.RequireAuth,
		LoginLimiter: limiter,
		TrustProxy:   cfg.TrustProxy,
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/mcp", mcp.NewMCPServer(store).Handler())

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
				if memStore != nil {
					if n := memStore.Sweep(); n > 0 {
						log.Debugf("Swept %d expired sessions", n)
					}
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server started at :%s (db=%s, sessions=%s, require_auth=%t)", cfg.Port, cfg.DBDriver, cfg.SessionStore, cfg.RequireAuth)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Shutdown: %v", err)
	}
}
