package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessellae/loopforge/internal/frontend"
	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/recipe"
	"github.com/tessellae/loopforge/internal/store"
	"github.com/tessellae/loopforge/internal/transform"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Store string
}

// NewApplyCommand creates the apply command: apply a recipe to a kernel
// and print the transformed model. With --store, the run is recorded
// whether it succeeds or fails.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "apply <kernel.cue> <recipe.yaml>",
		Short:         "Apply a transformation recipe to a kernel",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "SQLite run log to record this application in")
	return cmd
}

func runApply(opts *ApplyOptions, kernelPath, recipePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	res, err := frontend.LoadKernel(kernelPath)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "load kernel", err)
	}
	data, err := os.ReadFile(recipePath)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "read recipe", err)
	}
	r, err := recipe.Parse(data)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "parse recipe", err)
	}

	e := transform.New(res.Kernel)
	applyErr := recipe.Apply(e, r)

	// The engine holds the state after the last successful operation
	// either way; that is what gets printed and recorded.
	k := e.Snapshot()
	text, err := canonicalModel(k)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "render model", err)
	}

	if opts.Store != "" {
		if err := recordRun(opts, k, []byte(text), applyErr); err != nil {
			formatter.Failure("ERROR", err.Error())
			return WrapExitError(ExitCommandError, "record run", err)
		}
	}

	if applyErr != nil {
		formatter.Failure(failureCode(applyErr), applyErr.Error())
		return WrapExitError(ExitFailure, "apply recipe", applyErr)
	}
	return formatter.SuccessText("model", text)
}

func recordRun(opts *ApplyOptions, k *ir.Kernel, canonical []byte, applyErr error) error {
	s, err := store.Open(opts.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	run := &store.Run{
		Token:      store.NewRunToken(),
		KernelName: k.Name,
		Status:     store.RunApplied,
		Canonical:  canonical,
		Ops:        k.History,
	}
	if applyErr != nil {
		run.Status = store.RunFailed
		run.Error = applyErr.Error()
	}
	if err := s.RecordRun(context.Background(), run); err != nil {
		return fmt.Errorf("record run %s: %w", run.Token, err)
	}
	return nil
}
