// Package cmd holds the dbaccountsync command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"dbaccountsync/config"
	"dbaccountsync/pkg/events"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"
	"dbaccountsync/services/accountsync"
	"dbaccountsync/services/classification"
	"dbaccountsync/services/filter"
	"dbaccountsync/services/permission"
	"dbaccountsync/services/task"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "dbaccountsync",
	Short:         "Sync and classify database accounts across a fleet of instances",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(logger.Options{
			File:       config.Cfg.LogFile,
			Level:      logger.ParseLogLevel(config.Cfg.LogLevel),
			MaxSize:    config.Cfg.LogMaxSize,
			MaxBackups: config.Cfg.LogMaxBackups,
			MaxAge:     config.Cfg.LogMaxAge,
			Compress:   config.Cfg.LogCompress,
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newTestConnectionCmd())
	rootCmd.AddCommand(newFixtureCmd())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app is the wiring shared by the commands that talk to the store.
type app struct {
	sync           accountsync.Service
	classification classification.Service
	permission     permission.Service
	executor       task.Executor
	monitor        *task.RunMonitor
	dispatcher     *events.Dispatcher
}

// openApp connects the store, loads the filter rules and builds the services.
func openApp() (*app, error) {
	if err := config.ConnectDB(); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	rules, err := filter.LoadRules(config.Cfg.FilterRulesFile)
	if err != nil {
		return nil, err
	}
	filter.SetActive(rules)

	evCfg, err := events.LoadConfig(config.Cfg.EventsConfigFile)
	if err != nil {
		return nil, fmt.Errorf("load events config: %w", err)
	}
	dispatcher, err := events.Setup(evCfg, events.NewStoreDLQ(repository.NewEventFailureRepository()))
	if err != nil {
		return nil, fmt.Errorf("set up events: %w", err)
	}
	events.SetDefault(dispatcher)

	syncer := accountsync.NewService()
	monitor := task.NewRunMonitor(0)
	return &app{
		sync:           syncer,
		classification: classification.NewService(),
		permission:     permission.NewService(),
		executor:       task.NewExecutor(syncer, monitor),
		monitor:        monitor,
		dispatcher:     dispatcher,
	}, nil
}

// close waits for queued event deliveries and stops background work.
func (a *app) close() {
	a.monitor.Stop()
	a.dispatcher.Wait()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
