package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LingByte/LingMeet/cmd/bootstrap"
	"github.com/LingByte/LingMeet/pkg/config"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/relay"
	"github.com/LingByte/LingMeet/pkg/room"
	"github.com/LingByte/LingMeet/pkg/store"
)

func main() {
	// 1. Parse Command Line Parameters
	addr := flag.String("addr", "", "HTTP serve address, overrides ADDR")
	mode := flag.String("mode", "", "running environment (development, test, production)")
	migrate := flag.Bool("init", true, "create or update the meetings table")
	debugSQL := flag.Bool("debug-sql", false, "log every SQL statement")
	flag.Parse()
	if *mode != "" {
		os.Setenv("MODE", *mode)
	}
	// 2. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	cfg := config.GlobalConfig
	// 3. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()
	// 4. Print Banner
	if err := bootstrap.PrintBannerFromFile("banner.txt", cfg.ServerName); err != nil {
		log.Fatalf("unload banner: %v", err)
	}
	// 5. Print Configuration
	bootstrap.LogConfigInfo()
	// 6. Load Data Source
	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DSN,
		AutoMigrate: *migrate,
		Debug:       *debugSQL,
	})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}
	meetings := store.NewMeetingStore(db, logger.Named("store"))
	janitor := bootstrap.NewHistoryJanitor(meetings, cfg.History.RetentionDays)
	if err := janitor.Recover(); err != nil {
		logger.Error("meeting history recovery failed", zap.Error(err))
		return
	}

	if *addr == "" {
		*addr = cfg.Addr
	}
	if !strings.HasPrefix(*addr, ":") && !strings.Contains(*addr, ":") {
		*addr = ":" + *addr
	}
	logger.Info("checked config -- addr: ", zap.String("addr", *addr))
	logger.Info("checked config -- mode: ", zap.String("mode", cfg.Mode))

	// 7. Relay
	registry := room.NewRegistry(room.WithObserver(meetings), room.WithLogger(logger.Named("room")))
	hub := relay.NewHub(cfg.Relay, registry,
		relay.WithMetrics(relay.NewMetrics(prometheus.DefaultRegisterer)),
		relay.WithLogger(logger.Named("relay")),
	)

	// 8. History janitor
	scheduler := cron.New()
	if _, err := janitor.Schedule(scheduler, cfg.History.PruneSchedule); err != nil {
		logger.Error("invalid prune schedule", zap.String("schedule", cfg.History.PruneSchedule), zap.Error(err))
		return
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 9. HTTP
	if cfg.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()        // Use gin.New() instead of gin.Default() to avoid automatic redirects
	r.Use(gin.Recovery()) // Manually add Recovery middleware

	// Disable automatic redirects to avoid CORS issues caused by 307 redirects
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	routes := &relay.Routes{Hub: hub, Meetings: meetings, Started: time.Now()}
	routes.Register(r)

	httpServer := &http.Server{
		Addr:           *addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down", zap.Int("connections", hub.ConnectionCount()))
		err := httpServer.Shutdown(shutdownCtx)
		// websockets are hijacked, Shutdown does not see them
		hub.Close()
		waitDrained(shutdownCtx, hub)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("HTTP server run failed", zap.Error(err))
	}
	// flush pending meeting open/close writes
	registry.Close()
}

func waitDrained(ctx context.Context, hub *relay.Hub) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for hub.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			logger.Warn("connections still open at exit", zap.Int("connections", hub.ConnectionCount()))
			return
		case <-ticker.C:
		}
	}
}
