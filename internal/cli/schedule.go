package cli

import (
	"github.com/spf13/cobra"

	"github.com/tessellae/loopforge/internal/schedule"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Recipe string
}

// NewScheduleCommand creates the schedule command: lower the (optionally
// transformed) kernel and print the scheduled tree.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "schedule <kernel.cue>",
		Short:         "Lower a kernel to its scheduled tree",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Recipe, "recipe", "r", "", "recipe YAML to apply before lowering")
	return cmd
}

func runSchedule(opts *ScheduleOptions, kernelPath string, cmd *cobra.Command) error {
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
	return formatter.SuccessText("schedule", tree.Render())
}
