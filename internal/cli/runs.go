package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessellae/loopforge/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Store string
	Token string
}

// NewRunsCommand creates the runs command: read back the run log written
// by apply --store.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "runs <kernel-name>",
		Short:         "List recorded recipe applications for a kernel",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kernel := ""
			if len(args) == 1 {
				kernel = args[0]
			}
			return runRuns(opts, kernel, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "SQLite run log to read")
	cmd.Flags().StringVar(&opts.Token, "token", "", "show one run in full instead of listing")
	cmd.MarkFlagRequired("store")
	return cmd
}

func runRuns(opts *RunsOptions, kernel string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	s, err := store.Open(opts.Store)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "open run log", err)
	}
	defer s.Close()
	ctx := context.Background()

	if opts.Token != "" {
		run, err := s.GetRun(ctx, opts.Token)
		if err != nil {
			formatter.Failure("ERROR", err.Error())
			return WrapExitError(ExitFailure, "load run", err)
		}
		return formatter.SuccessText("run", renderRun(run))
	}

	if kernel == "" {
		err := fmt.Errorf("a kernel name or --token is required")
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "list runs", err)
	}
	tokens, err := s.ListRuns(ctx, kernel)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitFailure, "list runs", err)
	}
	if opts.Format == "json" {
		return formatter.Success(map[string]any{"kernel": kernel, "runs": tokens})
	}
	var b strings.Builder
	for _, tok := range tokens {
		fmt.Fprintln(&b, tok)
	}
	return formatter.SuccessText("runs", b.String())
}

func renderRun(run *store.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", run.Token)
	fmt.Fprintf(&b, "kernel %s\n", run.KernelName)
	fmt.Fprintf(&b, "status %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(&b, "error %s\n", run.Error)
	}
	for _, op := range run.Ops {
		fmt.Fprintf(&b, "op %d: %s %s", op.Seq, op.Op, op.Iname)
		if op.Factor != 0 {
			fmt.Fprintf(&b, " factor=%d", op.Factor)
		}
		if op.Tag != "" {
			fmt.Fprintf(&b, " tag=%s", op.Tag)
		}
		if op.Combine != "" {
			fmt.Fprintf(&b, " combine=%s", op.Combine)
		}
		b.WriteByte('\n')
	}
	b.Write(run.Canonical)
	return b.String()
}
