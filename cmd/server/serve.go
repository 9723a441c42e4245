package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/damacus/your-files/internal/config"
	"github.com/damacus/your-files/internal/handlers"
	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/metrics"
	customMiddleware "github.com/damacus/your-files/internal/middleware"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/renderer"
	"github.com/damacus/your-files/internal/services"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Your Files browser over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			browser, err := a.browser(ctx, services.BrowserOptions{
				UploadOptions: []services.UploaderOption{
					services.WithUploadComplete(logUploads),
				},
				DeleteOptions: []services.DeleterOption{
					services.WithDeleteComplete(logDeletes),
				},
			})
			if err != nil {
				return err
			}
			return runServer(ctx, newServer(browser, a.cfg), a.cfg.ListenAddr)
		},
	}

	f := cmd.Flags()
	f.String(flagName(config.KeyListenAddr), ":8080", "address to listen on")
	f.Duration(flagName(config.KeyDownloadExpiry), services.DefaultDownloadExpiry, "lifetime of download links")
	f.Bool(flagName(config.KeyCookieSecure), false, "mark the CSRF cookie Secure")
	return cmd
}

func newServer(browser *services.Browser, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(customMiddleware.RequestID())
	e.Use(customMiddleware.RequestLogger())
	e.Use(customMiddleware.SecurityHeaders())
	e.Use(customMiddleware.CSRF(cfg.CookieSecure))

	// Template Renderer
	e.Renderer = renderer.New()
	e.HTTPErrorHandler = handlers.ErrorHandler

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/your-files")
	})

	handlers.NewFilesHandler(browser).Register(e)
	return e
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func logUploads(tasks []models.UploadTask) {
	counts := make(map[models.UploadStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	logger.Info().
		Int("uploaded", counts[models.UploadUploaded]).
		Int("failed", counts[models.UploadFailed]).
		Int("aborted", counts[models.UploadAborted]).
		Int("pending", counts[models.UploadPending]).
		Msg("upload run complete")
}

func logDeletes(tasks []models.DeleteTask) {
	failed := 0
	for _, t := range tasks {
		if t.DeleteError != "" {
			failed++
		}
	}
	logger.Info().Int("items", len(tasks)).Int("failed", failed).Msg("delete run complete")
}
