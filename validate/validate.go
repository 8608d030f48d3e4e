// Command validate checks the trial configuration files in a directory
// (../configs by default). For each JSON or YAML file it checks:
//   - the file parses and passes engine validation (ranges, durations, hold window)
//   - the name matches the file name, so config IDs resolve to the file
//   - a description is present for list_configs
//
// Names must also be unique across the directory. It exits non-zero if any
// file is invalid.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/startlights/game/config"
	"github.com/wricardo/startlights/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
type ValidationResult struct {
	File   string
	Name   string
	Valid  bool
	Errors []string
	Notes  []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) note(format string, args ...interface{}) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single configuration file.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	cfg, err := engine.ParseConfig(filePath, data)
	if err != nil {
		result.fail("%v", err)
		return result
	}
	result.Name = cfg.Name

	if id := config.ConfigID(result.File); cfg.Name != id {
		result.fail("name %q does not match file name %q", cfg.Name, id)
	}
	if strings.TrimSpace(cfg.Description) == "" {
		result.fail("description is required")
	}

	if !result.Valid {
		return result
	}

	earliest, latest := cfg.SequenceBounds()
	result.note("✓ Name: %s", cfg.Name)
	result.note("✓ Attempts: %d", cfg.AttemptsPerSession)
	result.note("✓ Lights: %d every %s", cfg.NumberOfStimuli, cfg.StimulusOnInterval)
	result.note("✓ Lights out: %s to %s after arming", earliest, latest)
	result.note("✓ Response timeout: %s", cfg.ResponseTimeout)
	if cfg.MinHoldDuration == cfg.MaxHoldDuration {
		result.note("⚠ Fixed hold of %s, lights out is predictable", cfg.MinHoldDuration)
	}
	if cfg.ResultDisplay > 0 {
		result.note("✓ Auto advance after %s", cfg.ResultDisplay)
	}

	return result
}

// configFiles returns the JSON and YAML files in dir, sorted.
func configFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// validateDir validates every file in dir and flags duplicate names.
func validateDir(dir string) ([]ValidationResult, error) {
	files, err := configFiles(dir)
	if err != nil {
		return nil, err
	}

	results := make([]ValidationResult, 0, len(files))
	seen := make(map[string]string)
	for _, file := range files {
		result := validateConfig(file)
		if result.Name != "" {
			if first, dup := seen[result.Name]; dup {
				result.fail("duplicate name %q, also used by %s", result.Name, first)
			} else {
				seen[result.Name] = result.File
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// main validates ../configs, or the directory given as the first argument,
// printing a concise report and exiting with non-zero status if any file is
// invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	results, err := validateDir(configDir)
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Printf("No config files found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, result := range results {
		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Notes {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, e := range result.Errors {
				fmt.Println("  ❌ " + e)
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All configurations are valid!")
	} else {
		fmt.Println("❌ Some configurations have errors")
		os.Exit(1)
	}
}
