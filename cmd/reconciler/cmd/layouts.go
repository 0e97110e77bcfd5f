package cmd

import (
	"fmt"
	"strings"

	"gst-reconciliation-service/internal/parsers"
	"gst-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

// layoutsCmd shows the register layouts and the header texts each column is read from
var layoutsCmd = &cobra.Command{
	Use:   "layouts [NAME]",
	Short: "List register layouts and their column aliases",
	Long: `Without a name, lists the predefined register layouts. With a name, shows the
sheets the layout reads and the header texts accepted for each column. Extra
header texts can be added in the config file under layouts.<name>.aliases.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, l := range parsers.ListAvailableLayouts() {
				fmt.Fprintf(out, "%-22s %s\n", l.Name, l.Description)
			}
			return nil
		}

		layout := parsers.GetLayout(args[0])
		if layout == nil {
			return errors.ValidationError(errors.CodeInvalidData, "layout", args[0], nil).
				WithSuggestion("Run 'gst-reconciler layouts' to list the layout names")
		}

		fmt.Fprintf(out, "%s: %s\n", layout.Name, layout.Description)
		if len(layout.SheetExact) > 0 || len(layout.SheetKeywords) > 0 {
			fmt.Fprintf(out, "Sheets: %s\n", strings.Join(append(append([]string{}, layout.SheetExact...), layout.SheetKeywords...), ", "))
		}
		required := make(map[string]bool, len(layout.Required))
		for _, col := range layout.Required {
			required[col] = true
		}
		for _, col := range layout.Columns() {
			marker := " "
			if required[col] {
				marker = "*"
			}
			fmt.Fprintf(out, " %s %-16s %s\n", marker, col, strings.Join(layout.Aliases[col], " | "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(layoutsCmd)
}
