package cmd

import (
	"fmt"

	"dbaccountsync/models"
	"dbaccountsync/services/classification"
	"dbaccountsync/utils"

	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	var (
		instanceID uint
		countRule  uint
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Rebuild account classifications from the active rules",
		Example: `  dbaccountsync classify
  dbaccountsync classify --instance 3
  dbaccountsync classify --count-rule 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if countRule != 0 {
				n, err := a.classification.CountMatches(cmd.Context(), countRule)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rule %d matches %d accounts\n", countRule, n)
				return nil
			}

			batch, err := a.classification.AutoClassify(cmd.Context(), classification.Scope{
				InstanceID: utils.OptionalID(instanceID),
				BatchType:  models.BatchTypeManual,
			})
			if batch != nil {
				if perr := printJSON(cmd.OutOrStdout(), batch); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().UintVar(&instanceID, "instance", 0, "Limit the run to one instance")
	cmd.Flags().UintVar(&countRule, "count-rule", 0, "Only count the live matches of this rule")
	cmd.MarkFlagsMutuallyExclusive("instance", "count-rule")
	return cmd
}
