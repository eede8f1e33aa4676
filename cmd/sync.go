package cmd

import (
	"fmt"

	"dbaccountsync/models"
	"dbaccountsync/utils"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var (
		instanceID uint
		ids        []uint
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync accounts of one instance or of a set of instances",
		Example: `  dbaccountsync sync --instance 3
  dbaccountsync sync --ids 1,2,5
  dbaccountsync sync --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if instanceID != 0 {
				out, err := a.sync.SyncAccounts(cmd.Context(), instanceID, models.SyncTypeManualSingle, "")
				if out != nil {
					if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
						return perr
					}
				}
				return err
			}

			session, err := a.sync.SyncFleet(cmd.Context(), ids, nil)
			if err != nil {
				return err
			}
			full, err := a.sync.GetSession(cmd.Context(), session.SessionID)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), full); err != nil {
				return err
			}
			if full.FailedInstances > 0 {
				return fmt.Errorf("%d of %d instances failed", full.FailedInstances, full.TotalInstances)
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&instanceID, "instance", 0, "Instance to sync outside any session")
	cmd.Flags().UintSliceVar(&ids, "ids", nil, "Instances to sync in one batch session")
	cmd.Flags().BoolVar(&all, "all", false, "Sync every active instance in one batch session")
	cmd.MarkFlagsMutuallyExclusive("instance", "ids", "all")
	cmd.MarkFlagsOneRequired("instance", "ids", "all")
	return cmd
}

func newTestConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection INSTANCE_ID",
		Short: "Probe an instance and store its version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.sync.TestConnection(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("connection to instance %d failed", id)
			}
			return nil
		},
	}
}
