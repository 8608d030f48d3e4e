// Command autoplay plays reaction trial sessions against a running server
// through the REST API. Strategies simulate a human driver, a driver who
// always jumps the start, and one who never reacts, which exercises every
// outcome, the upload sinks and the historical record end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "autoplay",
		Usage: "Play reaction trial sessions against a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Server URL"},
			&cli.StringFlag{Name: "config", Usage: "Trial config ID (server default when empty)"},
			&cli.IntFlag{Name: "sessions", Value: 1, Usage: "Number of sessions to play"},
			&cli.StringFlag{Name: "strategy", Value: "human", Usage: "human, jumpstart or sleeper"},
			&cli.DurationFlag{Name: "mean", Value: 250 * time.Millisecond, Usage: "Mean reaction delay (human)"},
			&cli.DurationFlag{Name: "stddev", Value: 40 * time.Millisecond, Usage: "Reaction delay standard deviation (human)"},
			&cli.FloatFlag{Name: "false-start-rate", Value: 0.1, Usage: "Probability of jumping the start (human)"},
			&cli.IntFlag{Name: "seed", Usage: "Random seed (time based when zero)"},
			&cli.DurationFlag{Name: "poll", Value: 5 * time.Millisecond, Usage: "State polling interval"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd.Bool("v"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	seed := int64(cmd.Int("seed"))
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	strategy, err := NewStrategy(cmd.String("strategy"), cmd.Duration("mean"), cmd.Duration("stddev"),
		cmd.Float("false-start-rate"), seed)
	if err != nil {
		return err
	}

	client := NewClient(cmd.String("url"))
	player := NewPlayer(client, strategy, cmd.Duration("poll"), logger)

	logger.Info("Connecting to trial server", zap.String("url", cmd.String("url")),
		zap.String("strategy", strategy.Name()))

	sessions := int(cmd.Int("sessions"))
	for i := 1; i <= sessions; i++ {
		summary, err := player.PlaySession(ctx, cmd.String("config"))
		if err != nil {
			return fmt.Errorf("session %d: %w", i, err)
		}
		printSummary(i, summary)
	}

	stats, err := client.History(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nHistory: %d sessions, %d reactions, average %.1fms, best %.1fms, false starts %d\n",
		stats.Sessions, stats.ReactionCount, engine.Millis(stats.Average), engine.Millis(stats.Best), stats.FalseStarts)
	if stats.TrendAvailable {
		fmt.Printf("Trend: %+.1fms per session\n", stats.Trend)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

func printSummary(n int, s *engine.Summary) {
	fmt.Printf("Session %d (%s): valid %d/%d, false starts %d, timed out %d",
		n, s.SessionID, s.ValidCount, s.AttemptsPerSession, s.FalseStartCount, s.TimedOutCount)
	if s.ValidCount > 0 {
		fmt.Printf(", average %.1fms, best %.1fms", engine.Millis(s.SessionAverage), engine.Millis(s.SessionBest))
	}
	fmt.Printf(", rating %s\n", s.Rating)
}
