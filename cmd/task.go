package cmd

import (
	"fmt"
	"text/tabwriter"

	"dbaccountsync/models"
	"dbaccountsync/repository"
	"dbaccountsync/utils"

	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "List and run sync tasks",
	}
	cmd.AddCommand(newTaskRunCmd())
	cmd.AddCommand(newTaskListCmd())
	return cmd
}

func newTaskRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run TASK_ID",
		Short: "Run a task now as manual_task",
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

			run, err := a.executor.ExecuteTask(cmd.Context(), id, models.SyncTypeManualTask)
			if run != nil {
				if perr := printJSON(cmd.OutOrStdout(), run); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			tasks, err := repository.NewTaskRepository().ListActive(nil)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDB_TYPE\tSCHEDULE\tLAST_STATUS\tRUNS")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d/%d\n", t.ID, t.Name, t.DBType, t.Schedule, t.LastStatus, t.SuccessCount, t.RunCount)
			}
			return tw.Flush()
		},
	}
}
