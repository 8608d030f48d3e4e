// Command analyze prints quick, human-readable timing heuristics about the
// trial configurations in the project's configs directory. It summarizes the
// arming sequence, the lights out window, the worst case session length and
// how predictable the go signal is.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wricardo/startlights/game/engine"
)

// anticipationWindow is how far ahead a driver can usefully guess lights out.
// A hold window narrower than this lets a timed guess beat a real reaction.
const anticipationWindow = 200 * time.Millisecond

// Analysis is the timing profile of one configuration.
type Analysis struct {
	Name         string
	Arming       time.Duration
	EarliestGo   time.Duration
	LatestGo     time.Duration
	HoldWindow   time.Duration
	WorstAttempt time.Duration
	WorstSession time.Duration
	AutoAdvance  bool
	Warnings     []string
}

// analyze computes the timing profile of cfg.
func analyze(cfg *engine.Config) Analysis {
	earliest, latest := cfg.SequenceBounds()
	a := Analysis{
		Name:        cfg.Name,
		Arming:      time.Duration(cfg.NumberOfStimuli) * cfg.StimulusOnInterval.Std(),
		EarliestGo:  earliest,
		LatestGo:    latest,
		HoldWindow:  cfg.MaxHoldDuration.Std() - cfg.MinHoldDuration.Std(),
		AutoAdvance: cfg.ResultDisplay > 0,
	}
	a.WorstAttempt = latest + cfg.ResponseTimeout.Std() + cfg.ResultDisplay.Std()
	a.WorstSession = time.Duration(cfg.AttemptsPerSession) * a.WorstAttempt

	if a.HoldWindow < anticipationWindow {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("hold window %s is narrower than %s, lights out can be anticipated", a.HoldWindow, anticipationWindow))
	}
	if cfg.ResponseTimeout.Std() <= engine.SlowReactionThreshold {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("response timeout %s leaves no room for a slow rating (over %s)", cfg.ResponseTimeout, engine.SlowReactionThreshold))
	}
	if cfg.DebounceWindow.Std() >= cfg.ResponseTimeout.Std() {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("debounce window %s is not shorter than the response timeout", cfg.DebounceWindow))
	}
	return a
}

func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, _ := filepath.Glob(filepath.Join(configDir, pattern))
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, configFile := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(configFile))
		analyzeFile(configFile)
	}
}

func analyzeFile(path string) {
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	a := analyze(cfg)
	fmt.Printf("Name: %s\n", a.Name)
	fmt.Printf("Attempts: %d, Lights: %d\n", cfg.AttemptsPerSession, cfg.NumberOfStimuli)
	fmt.Printf("Arming sequence: %s\n", a.Arming)
	fmt.Printf("Lights out: %s to %s after arming (window %s)\n", a.EarliestGo, a.LatestGo, a.HoldWindow)
	fmt.Printf("Worst case attempt: %s\n", a.WorstAttempt)
	fmt.Printf("Worst case session: %s\n", a.WorstSession)
	if a.AutoAdvance {
		fmt.Printf("Auto advance after %s\n", cfg.ResultDisplay)
	} else {
		fmt.Printf("Manual advance between attempts\n")
	}

	if len(a.Warnings) == 0 {
		fmt.Printf("✅ Timing looks reasonable\n")
		return
	}
	for _, w := range a.Warnings {
		fmt.Printf("⚠️  WARNING: %s\n", w)
	}
}
