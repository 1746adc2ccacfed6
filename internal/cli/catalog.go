package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewCatalogCmd creates the catalog command.
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the course catalog",
	}

	cmd.AddCommand(newCatalogListCmd())
	cmd.AddCommand(newCatalogAdjacentCmd())

	return cmd
}

func newCatalogListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every exercise in course order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			store, err := cliCtx.GetCatalog()
			if err != nil {
				return err
			}
			m := store.Current()
			out := cmd.OutOrStdout()

			if jsonOutput {
				data, err := json.MarshalIndent(m, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tMODULE\tEXERCISE\tSANDBOX\tTITLE")
			for _, ref := range m.Exercises() {
				sandbox := "no"
				if m.CanRunInBrowser(ref.Module) {
					sandbox = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", ref.Day, ref.Module, ref.Exercise, sandbox, ref.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the manifest as JSON")

	return cmd
}

func newCatalogAdjacentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adjacent <module> <exercise>",
		Short: "Show the exercises before and after one exercise",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			store, err := cliCtx.GetCatalog()
			if err != nil {
				return err
			}

			prev, next, err := store.Current().Adjacent(args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if prev != nil {
				fmt.Fprintf(out, "prev: %s  %s\n", prev.Key(), prev.Title)
			} else {
				fmt.Fprintln(out, "prev: -")
			}
			if next != nil {
				fmt.Fprintf(out, "next: %s  %s\n", next.Key(), next.Title)
			} else {
				fmt.Fprintln(out, "next: -")
			}
			return nil
		},
	}
}
