package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"runbox/internal/progress"
)

// NewProgressCmd creates the progress command.
func NewProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Manage saved code and completed exercises",
		Long:  `Read and change the progress data stored in the local database.`,
	}

	cmd.AddCommand(newProgressSaveCmd())
	cmd.AddCommand(newProgressShowCmd())
	cmd.AddCommand(newProgressMarkCmd("complete", "Mark an exercise as completed", true))
	cmd.AddCommand(newProgressMarkCmd("incomplete", "Clear the completed mark of an exercise", false))
	cmd.AddCommand(newProgressCountCmd())
	cmd.AddCommand(newProgressResetCmd())

	return cmd
}

func progressStore(cmd *cobra.Command) (*progress.Store, error) {
	cliCtx, err := requireCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	return cliCtx.GetProgress()
}

func newProgressSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <module> <exercise> <file|->",
		Short: "Save code for an exercise",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := progressStore(cmd)
			if err != nil {
				return err
			}
			code, err := readSource(cmd, args[2])
			if err != nil {
				return err
			}
			if err := store.SaveCode(cmd.Context(), args[0], args[1], code); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bytes for %s/%s\n", len(code), args[0], args[1])
			return nil
		},
	}
}

func newProgressShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <module> <exercise>",
		Short: "Print saved code and completion state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := progressStore(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			done, err := store.IsCompleted(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			code, ok, err := store.GetSavedCode(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "completed: %t\n", done)
			if !ok {
				fmt.Fprintln(out, "saved code: none")
				return nil
			}
			fmt.Fprintln(out, "saved code:")
			fmt.Fprintln(out, code)
			return nil
		},
	}
}

func newProgressMarkCmd(use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <module> <exercise>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := progressStore(cmd)
			if err != nil {
				return err
			}
			if completed {
				err = store.MarkCompleted(cmd.Context(), args[0], args[1])
			} else {
				err = store.MarkIncomplete(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s completed: %t\n", args[0], args[1], completed)
			return nil
		},
	}
}

func newProgressCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <module>",
		Short: "Count completed exercises of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := progressStore(cmd)
			if err != nil {
				return err
			}
			n, err := store.GetCompletedCount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newProgressResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <module> <exercise>",
		Short: "Forget saved code and completion for an exercise",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := progressStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Reset(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s/%s\n", args[0], args[1])
			return nil
		},
	}
}
