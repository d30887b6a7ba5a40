package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/harness"
)

// ScenarioValidation holds the validation outcome for one file.
type ScenarioValidation struct {
	File      string `json:"file"`
	Name      string `json:"name,omitempty"`
	Valid     bool   `json:"valid"`
	Processes int    `json:"processes,omitempty"`
	Events    int    `json:"events,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                 `json:"valid"`
	Scenarios []ScenarioValidation `json:"scenarios"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenarios without running them",
		Long: `Parse and structurally validate scenario files.

Checks unknown fields, that every step performs exactly one action, that
every referenced process exists, and that delays are non-negative. CUE
scenarios must evaluate to concrete values.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // We handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := expandScenarioPaths(args)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Found %d scenario file(s)", len(files))

	result := ValidationResult{Valid: true, Scenarios: make([]ScenarioValidation, 0, len(files))}
	for _, file := range files {
		result.Scenarios = append(result.Scenarios, validateScenarioFile(file))
	}
	invalid := 0
	for _, sv := range result.Scenarios {
		if !sv.Valid {
			invalid++
		}
	}
	result.Valid = invalid == 0

	if formatter.IsJSON() {
		var failure *CLIError
		if invalid > 0 {
			failure = &CLIError{Code: CodeInvalid, Message: fmt.Sprintf("%d scenario(s) invalid", invalid)}
		}
		if err := formatter.Report(result, failure); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, sv := range result.Scenarios {
			if sv.Valid {
				fmt.Fprintf(w, "✓ %s (%s: %d processes, %d scheduled)\n", sv.File, sv.Name, sv.Processes, sv.Events)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n  %s\n", sv.File, sv.Error)
		}
		if invalid == 0 {
			fmt.Fprintln(w, "✓ All scenarios valid")
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) invalid", invalid))
	}
	return nil
}

func validateScenarioFile(file string) ScenarioValidation {
	sc, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioValidation{File: file, Valid: false, Error: err.Error()}
	}
	return ScenarioValidation{
		File:      file,
		Name:      sc.Name,
		Valid:     true,
		Processes: len(sc.Processes),
		Events:    len(sc.Schedule),
	}
}
