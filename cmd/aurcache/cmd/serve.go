package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurcache/aurcache/internal/config"
	"github.com/aurcache/aurcache/internal/gitgateway"
	"github.com/aurcache/aurcache/internal/httpapi"
	"github.com/aurcache/aurcache/internal/packagecache"
	"github.com/aurcache/aurcache/internal/recipe"
	"github.com/aurcache/aurcache/internal/rpctranslator"
	"github.com/aurcache/aurcache/internal/runner"
	"github.com/aurcache/aurcache/internal/slogutil"
	"github.com/aurcache/aurcache/internal/store"
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the caching Git proxy",
		Long:  `Start the caching Git proxy using configuration from a YAML file.`,
		RunE:  runServe,
	}

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := slogutil.New(cfg.Log)
	logger.Info("starting aurcache",
		"port", cfg.Port,
		"cache_dir", cfg.CacheDir,
		"upstream_index", cfg.UpstreamIndex,
		"upstream_mirror", cfg.UpstreamMirror,
		"recipe_shell_eval", cfg.RecipeShellEval)

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		logger.Error("failed to create cache directory", "err", err)
		return err
	}

	st, err := store.Open(store.Config{DatabasePath: filepath.Join(cfg.CacheDir, "packages.db")})
	if err != nil {
		logger.Error("failed to open metadata store", "err", err)
		return err
	}
	defer func() { _ = st.Close() }()

	gitRunner := runner.New(logger)
	parser := recipe.New(gitRunner, cfg.RecipeShellEval, logger)

	manager := packagecache.New(packagecache.Config{
		CacheRoot:      cfg.CacheDir,
		UpstreamIndex:  cfg.UpstreamIndex,
		UpstreamMirror: cfg.UpstreamMirror,
	}, st, gitRunner, logger)

	gateway := gitgateway.New(manager, st, gitRunner, logger)
	translator := rpctranslator.New(manager, st, parser, cfg.CacheDir, logger)

	maxUploadBytes, err := cfg.MaxUploadBytes()
	if err != nil {
		logger.Error("invalid max_upload_size", "err", err)
		return err
	}

	router := httpapi.New(st, cfg.CacheDir, gateway, translator, maxUploadBytes, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	signalHandler(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}

	logger.Info("aurcache shutting down")
	return nil
}

// signalHandler blocks until SIGINT or SIGTERM arrives, mirroring the
// teacher's Ctrl-C/Ctrl-\ wait loop.
func signalHandler(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("shutdown signal received")
}
