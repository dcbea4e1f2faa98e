package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rawwebapi/api"
	"rawwebapi/config"
	"rawwebapi/converter"
	"rawwebapi/task"

	"github.com/oklog/run"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg)
	},
}

// resolveRunner resolves the converter once and binds it to a runner. A
// resolve failure is not fatal: it comes back as a status with a nil runner.
func resolveRunner(ctx context.Context, cfg *config.Config) (task.Runner, api.ConverterStatus, error) {
	handle, resolveErr := converter.NewResolver(cfg, os.Stderr).Resolve(ctx)
	status := api.NewConverterStatus(handle, resolveErr)
	if resolveErr != nil {
		log.Error(status.Message)
		return nil, status, nil
	}
	log.Info(status.Message)

	r, err := converter.NewRunner(cfg, handle)
	if err != nil {
		return nil, status, err
	}
	return r, status, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runner, status, err := resolveRunner(ctx, cfg)
	if err != nil {
		return err
	}

	manager, err := task.NewManager(cfg, runner)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(manager, cfg, status),
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				log.Info("Shutting down gracefully, press Ctrl+C again to force")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Conversion worker and cleanup.
	{
		managerCtx, managerCancel := context.WithCancel(ctx)
		defer managerCancel()

		g.Add(
			func() error {
				manager.Start(managerCtx)
				<-managerCtx.Done()
				return nil
			},
			func(_ error) {
				managerCancel()
			},
		)
	}

	// HTTP server.
	g.Add(
		func() error {
			log.Infof("Server starting on port %s", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		func(_ error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorf("Server forced to shutdown: %v", err)
			}
		},
	)

	err = g.Run()
	log.Info("Server exiting")
	return err
}
