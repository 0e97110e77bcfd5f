package cmd

import (
	"fmt"
	"strings"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	linkScope  string
	clearForce bool
)

// linksCmd groups the commands managing saved manual links
var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage saved manual links",
	Long: `Manual links pair a Books row with a Portal row by their unique ids (B_n and
G_n, the zero-based row positions shown in every report). Saved links are applied
first by every later run of the same scope until removed.

Examples:
  gst-reconciler links list
  gst-reconciler links add B_4 G_17
  gst-reconciler links --scope notes remove B_0 G_2
  gst-reconciler links clear --force`,
}

var linksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the saved links of a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := parseScope(linkScope)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		links, err := store.List(cmd.Context(), scope)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(links) == 0 {
			fmt.Fprintf(out, "No saved %s links\n", scope)
			return nil
		}
		fmt.Fprintf(out, "%-12s %-12s %s\n", "BOOKS", "PORTAL", "CREATED")
		for _, l := range links {
			fmt.Fprintf(out, "%-12s %-12s %s\n", l.Pair.BooksID, l.Pair.PortalID, l.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var linksAddCmd = &cobra.Command{
	Use:   "add BOOKS_ID PORTAL_ID",
	Short: "Save a manual link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, pair, err := linkArgs(args)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		added, err := store.Add(cmd.Context(), scope, pair, "")
		if err != nil {
			return err
		}
		if added {
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s (%s)\n", pair.BooksID, pair.PortalID, scope)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Link %s to %s already saved (%s)\n", pair.BooksID, pair.PortalID, scope)
		}
		return nil
	},
}

var linksRemoveCmd = &cobra.Command{
	Use:   "remove BOOKS_ID PORTAL_ID",
	Short: "Remove a saved manual link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, pair, err := linkArgs(args)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Remove(cmd.Context(), scope, pair, ""); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed link %s to %s (%s)\n", pair.BooksID, pair.PortalID, scope)
		return nil
	},
}

var linksClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every saved link of a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := parseScope(linkScope)
		if err != nil {
			return err
		}
		if !clearForce {
			return errors.ValidationError(errors.CodeMissingField, "force", nil, nil).
				WithSuggestion(fmt.Sprintf("Pass --force to remove every saved %s link", scope))
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Clear(cmd.Context(), scope, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s links\n", n, scope)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(linksCmd)
	linksCmd.AddCommand(linksListCmd, linksAddCmd, linksRemoveCmd, linksClearCmd)

	linksCmd.PersistentFlags().StringVarP(&linkScope, "scope", "s", string(models.ScopeInvoices), "link scope: invoices or notes")
	linksClearCmd.Flags().BoolVar(&clearForce, "force", false, "confirm removing every link of the scope")
}

func parseScope(s string) (models.Scope, error) {
	scope := models.Scope(strings.ToLower(strings.TrimSpace(s)))
	if !scope.IsValid() {
		return "", errors.ValidationError(errors.CodeInvalidData, "scope", s, nil).
			WithSuggestion("Use invoices or notes")
	}
	return scope, nil
}

// linkArgs parses BOOKS_ID PORTAL_ID for the current scope
func linkArgs(args []string) (models.Scope, models.LinkPair, error) {
	scope, err := parseScope(linkScope)
	if err != nil {
		return "", models.LinkPair{}, err
	}
	pair := models.LinkPair{
		BooksID:  models.UniqueID(strings.ToUpper(strings.TrimSpace(args[0]))),
		PortalID: models.UniqueID(strings.ToUpper(strings.TrimSpace(args[1]))),
	}
	if !strings.HasPrefix(string(pair.BooksID), models.SideBooks.IDPrefix()) {
		return "", models.LinkPair{}, errors.ValidationError(errors.CodeInvalidData, "books_id", args[0], nil).
			WithSuggestion("Books ids look like B_12")
	}
	if !strings.HasPrefix(string(pair.PortalID), models.SidePortal.IDPrefix()) {
		return "", models.LinkPair{}, errors.ValidationError(errors.CodeInvalidData, "portal_id", args[1], nil).
			WithSuggestion("Portal ids look like G_40")
	}
	return scope, pair, nil
}
