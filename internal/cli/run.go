package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"runbox/internal/jsvm/hostapi"
	"runbox/internal/runner"
	"runbox/internal/server"
)

// DefaultRunModule is used when `runbox run` gets no --module.
const DefaultRunModule = "module-1-templating"

const (
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiReset  = "\x1b[0m"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var (
		module     string
		jsonOutput bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <file|->",
		Short: "Run an exercise file in the sandbox",
		Long: `Run a TypeScript exercise the same way the course website does.

Console output is printed as it happens. When stdout is a terminal,
warnings and errors are coloured. The command exits non-zero when the
script throws.`,
		Example: `  # Run a file
  runbox run exercise.ts

  # Read from stdin and print the result as JSON
  cat exercise.ts | runbox run - --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}

			code, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			store, err := cliCtx.GetCatalog()
			if err != nil {
				return err
			}

			cfg := server.RunnerConfig(cliCtx.Config.Runner)
			cfg.PoolSize = 1
			cfg.WarmVMs = 0
			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = timeout
			}
			// Per-run logs would interleave with script output.
			log := cliCtx.Logger
			if !cliCtx.Verbose && log.GetLevel() < zerolog.WarnLevel {
				log = log.Level(zerolog.WarnLevel)
			}
			r := runner.New(cfg, store, log)
			defer r.Close()

			out := cmd.OutOrStdout()
			streamed := false
			var opts []runner.RunOption
			if !jsonOutput {
				color := isTerminal(out)
				opts = append(opts, runner.WithEvents(func(e runner.Event) {
					if e.Type == runner.EventTypeOutput {
						streamed = true
						fmt.Fprintln(out, colorize(*e.Line, color))
					}
				}))
			}

			res := r.Run(cmd.Context(), code, module, opts...)

			// Results that never ran a script, such as the advisory for an
			// unsupported module, carry output without streaming it.
			if !jsonOutput && !streamed {
				for _, line := range res.Output {
					fmt.Fprintln(out, line)
				}
			}

			if jsonOutput {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else if res.Failed() {
				errOut := cmd.ErrOrStderr()
				msg := "Error: " + res.ErrorMessage()
				if isTerminal(errOut) {
					msg = ansiRed + msg + ansiReset
				}
				fmt.Fprintln(errOut, msg)
			}

			if res.Failed() {
				return ErrRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&module, "module", "m", DefaultRunModule, "module the exercise belongs to")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run result as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override runner.timeout (0 disables it)")

	return cmd
}

// readSource reads a file, or stdin when name is "-".
func readSource(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func colorize(line hostapi.Line, color bool) string {
	if !color {
		return line.Text
	}
	switch line.Level {
	case hostapi.LevelWarn:
		return ansiYellow + line.Text + ansiReset
	case hostapi.LevelError:
		return ansiRed + line.Text + ansiReset
	}
	return line.Text
}
