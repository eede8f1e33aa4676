package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dbaccountsync/bootstrap"
	"dbaccountsync/config"
	"dbaccountsync/controllers"
	_ "dbaccountsync/docs"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"
	"dbaccountsync/services/task"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := bootstrap.Migrate(config.DB); err != nil {
				return err
			}
			if err := bootstrap.LoadData(); err != nil {
				return err
			}

			if config.Cfg.SchedulerEnabled {
				scheduler := task.NewScheduler(a.executor, repository.NewTaskRepository())
				if _, err := scheduler.Reload(ctx); err != nil {
					return err
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			controllers.SetSyncService(a.sync)
			controllers.SetPermissionService(a.permission)
			controllers.SetTaskExecutor(a.executor)
			controllers.SetClassificationService(a.classification)

			gin.SetMode(gin.ReleaseMode)
			gin.DefaultWriter = logger.Output()
			srv := &http.Server{
				Addr:              "0.0.0.0:" + config.Cfg.Port,
				Handler:           controllers.NewRouter(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Starting server at port %s", config.Cfg.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logger.Infof("Received shutdown signal, stopping server...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Server shutdown: %v", err)
			}
			logger.Infof("Application shutdown complete")
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ConnectDB(); err != nil {
				return err
			}
			if err := bootstrap.Migrate(config.DB); err != nil {
				return err
			}
			if seed {
				return bootstrap.LoadData()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "Seed the admin user, builtin tasks and default classifications")
	return cmd
}
