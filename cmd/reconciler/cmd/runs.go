package cmd

import (
	"encoding/json"
	"fmt"

	"gst-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	runScope string
	runLimit int
)

// runsCmd groups the commands reading the run history
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recorded reconciliation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the latest runs of a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := parseScope(runScope)
		if err != nil {
			return err
		}
		if runLimit < 0 {
			return errors.ValidationError(errors.CodeOutOfRange, "limit", runLimit, nil)
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), scope, runLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintf(out, "No recorded %s runs\n", scope)
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  tol=%s  links=%d  %s\n",
				r.ID, r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Tolerance.StringFixed(2), r.Links, r.Summary)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show a run and its audit log as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		audit, err := store.AuditLog(cmd.Context(), run.ID)
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]interface{}{
			"run":   run,
			"audit": audit,
		})
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)

	runsListCmd.Flags().StringVarP(&runScope, "scope", "s", "invoices", "run scope: invoices or notes")
	runsListCmd.Flags().IntVarP(&runLimit, "limit", "n", 20, "number of runs to show")
}
