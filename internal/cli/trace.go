package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tessellae/loopforge/internal/exec"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Recipe string
	Data   string
}

// traceInput is the concrete-data file: scalar parameters, input arrays,
// and the names of the arrays to print after the run.
type traceInput struct {
	Params  map[string]int64   `yaml:"params"`
	Arrays  map[string][]int64 `yaml:"arrays"`
	Outputs []string           `yaml:"outputs"`
}

// NewTraceCommand creates the trace command: evaluate a kernel over
// concrete data and print the requested output arrays.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "trace <kernel.cue>",
		Short:         "Evaluate a kernel over concrete data",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Recipe, "recipe", "r", "", "recipe YAML to apply before running")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "YAML data file (params, arrays, outputs)")
	cmd.MarkFlagRequired("data")
	return cmd
}

func runTrace(opts *TraceOptions, kernelPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	k, err := loadModel(kernelPath, opts.Recipe)
	if err != nil {
		formatter.Failure(failureCode(err), err.Error())
		return err
	}
	in, err := loadTraceInput(opts.Data)
	if err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitCommandError, "load data", err)
	}

	env := exec.NewEnv(in.Params)
	for name, data := range in.Arrays {
		env.SetArray(name, data)
	}
	if err := exec.RunKernel(k, env); err != nil {
		formatter.Failure("ERROR", err.Error())
		return WrapExitError(ExitFailure, "run kernel", err)
	}

	if opts.Format == "json" {
		out := make(map[string][]int64, len(in.Outputs))
		for _, name := range in.Outputs {
			out[name] = env.Array(name)
		}
		return formatter.Success(out)
	}

	var b strings.Builder
	for _, name := range in.Outputs {
		fmt.Fprintf(&b, "%s = %s\n", name, formatInts(env.Array(name)))
	}
	if opts.Verbose {
		for _, ev := range env.Events() {
			fmt.Fprintf(&b, "event %s\n", ev)
		}
	}
	return formatter.SuccessText("trace", b.String())
}

func loadTraceInput(path string) (*traceInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in traceInput
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("parse data file: %w", err)
	}
	if len(in.Outputs) == 0 {
		return nil, fmt.Errorf("data file names no outputs")
	}
	return &in, nil
}

func formatInts(vs []int64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
