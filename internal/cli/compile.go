package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// NewCompileCommand creates the compile command: CUE kernel in, canonical
// model out.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "compile <kernel.cue>",
		Short:         "Compile a CUE kernel definition to the canonical model",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	return cmd
}

func runCompile(opts *CompileOptions, kernelPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	k, err := loadModel(kernelPath, "")
	if err != nil {
		formatter.Failure(failureCode(err), err.Error())
		return err
	}
	text, err := canonicalModel(k)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "render model", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "write output", err)
		}
		return formatter.SuccessText("written", opts.Output+"\n")
	}
	return formatter.SuccessText("model", text)
}
