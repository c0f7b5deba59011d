package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/registry-cli/internal/availability"
)

var checkCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Check whether a business name is available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		hint, _ := cmd.Flags().GetString("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		ch := availability.NewChecker(st, availability.Options{
			Jurisdiction:   cfg.Check.Jurisdiction,
			PerCategoryCap: cfg.Check.PerCategoryCap,
			MergedCap:      cfg.Check.MergedCap,
			MaxSuggestions: cfg.Check.MaxSuggestions,
		})

		verdict, err := ch.Check(ctx, args[0], hint)
		if err != nil {
			return eris.Wrap(err, "check")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(verdict)
		}

		if verdict.Available {
			fmt.Printf("AVAILABLE: %q (normalized: %q)\n", verdict.SearchedName, verdict.NormalizedName)
			return nil
		}

		fmt.Printf("UNAVAILABLE: %q (normalized: %q)\n", verdict.SearchedName, verdict.NormalizedName)
		fmt.Println("\nConflicts:")
		for _, c := range verdict.Conflicts {
			filed := "unknown"
			if c.FilingDate != nil {
				filed = c.FilingDate.Format("2006-01-02")
			}
			fmt.Printf("  %-14s %-8s %s  (%s, filed %s)\n",
				c.DocumentNumber, c.Status, c.LegalName, c.Category, filed)
		}
		if len(verdict.Suggestions) > 0 {
			fmt.Println("\nSuggestions:")
			for _, s := range verdict.Suggestions {
				fmt.Printf("  %s\n", s)
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().String("type", "", "entity-type hint for suggestions, e.g. LLC or CORP")
	checkCmd.Flags().Bool("json", false, "print the verdict as JSON")
	rootCmd.AddCommand(checkCmd)
}
