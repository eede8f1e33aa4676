package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"dbaccountsync/config"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"
	"dbaccountsync/services/privilege"

	"github.com/spf13/cobra"
)

func newFixtureCmd() *cobra.Command {
	var (
		port     int
		seedFile string
		register string
	)
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Run an in-memory MySQL target seeded with accounts",
		Long: `Starts an in-memory MySQL server whose grant tables hold the seeded
accounts. With --register the fixture is also added to the store as an
active instance so sync and classify can run against it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := privilege.DefaultSeed()
			if seedFile != "" {
				s, err := privilege.LoadSeed(seedFile)
				if err != nil {
					return err
				}
				seed = s
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fx, err := privilege.StartFixture(ctx, port, seed)
			if err != nil {
				return err
			}
			defer fx.Close()

			if register != "" {
				if err := config.ConnectDB(); err != nil {
					return err
				}
				inst := fx.Instance(register)
				if err := repository.NewInstanceRepository().Create(nil, inst); err != nil {
					return fmt.Errorf("register fixture: %w", err)
				}
				logger.Infof("Registered fixture as instance %s (id %d)", inst.Name, inst.ID)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "fixture listening on 127.0.0.1:%d as %s with %d accounts\n",
				fx.Port, privilege.FixtureUser, len(seed.Accounts))
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 3307, "Listen port, 0 picks a free one")
	cmd.Flags().StringVar(&seedFile, "seed", "", "Yaml file of accounts (default: built-in seed)")
	cmd.Flags().StringVar(&register, "register", "", "Also register the fixture in the store under this instance name")
	return cmd
}
