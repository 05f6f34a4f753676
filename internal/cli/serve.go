// internal/cli/serve.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/link-makers/linkgen/internal/api"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP download-link API",
	Long: `Starts the HTTP server exposing the extraction workflow:

  POST /api/get-download-url   capture the generated link for one URL
  POST /api/download           capture the link and persist the file
  POST /api/batch-download     process up to 10 URLs in the background
  GET  /api/batch-status/{id}  poll a batch
  GET  /health                 liveness probe

The browser engine starts lazily on the first request and is recycled
hourly by a background janitor.`,
	Example: `  # Serve on the default port
  linkgen serve

  # Serve on a custom port with JSON logs
  linkgen serve --port 8080 --json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides PORT env)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a := GetApp()

	handler := api.NewHandler(a.Service, a.Orchestrator)
	router := handler.SetupRoutes(a.Limiter, a.Config.RateLimitMax)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Port),
		Handler: router,
		// Extractions can legitimately hold a request for minutes.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", a.Config.Port).Msg("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ServerShutdown)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
