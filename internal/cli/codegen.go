package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tessellae/loopforge/internal/codegen"
	"github.com/tessellae/loopforge/internal/schedule"
)

// CodegenOptions holds flags for the codegen command.
type CodegenOptions struct {
	*RootOptions
	Recipe string
	Output string
}

// NewCodegenCommand creates the codegen command: lower and emit
// ISPC-flavored source.
func NewCodegenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodegenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "codegen <kernel.cue>",
		Short:         "Emit target source for a kernel",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodegen(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Recipe, "recipe", "r", "", "recipe YAML to apply before lowering")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	return cmd
}

func runCodegen(opts *CodegenOptions, kernelPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	k, err := loadModel(kernelPath, opts.Recipe)
	if err != nil {
		formatter.Failure(failureCode(err), err.Error())
		return err
	}
	tree, err := schedule.Lower(k)
	if err != nil {
		formatter.Failure(failureCode(err), err.Error())
		return WrapExitError(ExitFailure, "lower kernel", err)
	}
	src, err := codegen.EmitISPC(tree)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitFailure, "emit code", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(src), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "write output", err)
		}
		return formatter.SuccessText("written", opts.Output+"\n")
	}
	return formatter.SuccessText("source", src)
}
