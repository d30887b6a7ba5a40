package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/simkernel/internal/harness"
)

// scenarioExts are the file extensions picked up from directories.
var scenarioExts = map[string]bool{".yaml": true, ".yml": true, ".cue": true}

// expandScenarioPaths resolves args to scenario files. Directories are
// walked for .yaml, .yml and .cue files; plain files are taken as given.
func expandScenarioPaths(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", arg))
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if scenarioExts[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to walk scenario directory", err)
		}
	}

	if len(files) == 0 {
		return nil, NewExitError(ExitCommandError, "no scenario files found")
	}
	return files, nil
}

// loadScenarios loads every file, failing on the first invalid one.
func loadScenarios(files []string) ([]*harness.Scenario, error) {
	scenarios := make([]*harness.Scenario, 0, len(files))
	for _, file := range files {
		sc, err := harness.LoadScenario(file)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", file), err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}
