package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"runbox/internal/reducer"
)

// NewReduceCmd creates the reduce command.
func NewReduceCmd() *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "reduce <file|->",
		Short: "Print the JavaScript an exercise is reduced to",
		Long: `Strip TypeScript annotations and module syntax from an exercise and
print the JavaScript the sandbox would execute. With --explain, the
source is printed after every pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			r := reducer.New()
			out := cmd.OutOrStdout()

			if !explain {
				reduced := r.Reduce(code)
				fmt.Fprint(out, reduced)
				if !strings.HasSuffix(reduced, "\n") {
					fmt.Fprintln(out)
				}
				return nil
			}

			for _, step := range r.Explain(code) {
				fmt.Fprintf(out, "=== %s ===\n", step.Pass)
				fmt.Fprintln(out, strings.TrimRight(step.Output, "\n"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "print the source after each pass")

	return cmd
}
