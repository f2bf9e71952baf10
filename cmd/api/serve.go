package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/nextsteps/internal/auth"
	"github.com/justsurfingit/nextsteps/internal/handlers"
	"github.com/justsurfingit/nextsteps/internal/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.withScan(ctx); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.Deps{
		Log:       a.log,
		Identity:  a.mail,
		Users:     a.users,
		Jobs:      a.jobs,
		Scanner:   a.scan,
		Analytics: a.analytics,
		Auth: &handlers.AuthHandler{
			Provider:     auth.NewGoogleProvider(auth.NewConfig(a.cfg.GoogleClientID, a.cfg.GoogleClientSecret, a.cfg.RedirectURL())),
			Users:        a.users,
			Identity:     a.mail,
			FrontendURL:  a.cfg.FrontendURL,
			SecureCookie: strings.HasPrefix(a.cfg.RedirectURL(), "https://"),
		},
		Metrics:        metrics.Handler(a.registry),
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:        ":" + a.cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// A scan holds the request open for up to the scan timeout.
		WriteTimeout: a.cfg.ScanTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("API server starting", slog.String("addr", server.Addr), slog.String("redirect_url", a.cfg.RedirectURL()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("API server stopped gracefully")
	return nil
}
