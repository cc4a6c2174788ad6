package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/rag-service/api/handlers"
	"github.com/feichai0017/rag-service/api/routes"
	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/internal/app"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := app.NewLogger(cfg, "server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize runtime", logger.Error(err))
	}
	defer rt.Close()

	if err := store.Migrate(rt.DB); err != nil {
		log.Fatal("Failed to migrate database", logger.Error(err))
	}

	// init handlers
	h := handlers.NewHandlers(
		rt.DocumentService(),
		rt.QuestionService(),
		map[string]handlers.Check{
			"database": func(ctx context.Context) error { return store.Ping(ctx, rt.DB) },
			"redis":    rt.Queue.Ping,
		},
		log,
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 8 << 20
	routes.SetupRoutes(r, h, cfg.Server.AllowOrigins, log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}
}
