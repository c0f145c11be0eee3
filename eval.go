package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kasuganosora/battlesim/config"
	"github.com/kasuganosora/battlesim/sim"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var evalCmd = &cobra.Command{
	Use:   "eval <scenarios.yaml>...",
	Short: "Evaluate scenario files and print the summaries as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := loadOrDefault(path)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		logger, err := newLogger(cfg.Server.Debug)
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
		defer logger.Sync()

		a, err := newApp(cfg, logger)
		if err != nil {
			log.Fatalf("startup: %v", err)
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		compact, _ := cmd.Flags().GetBool("compact")
		return a.evalFiles(ctx, cmd.OutOrStdout(), args, !compact)
	},
}

func init() {
	evalCmd.Flags().Bool("compact", false, "print one summary per line instead of indented JSON")
	rootCmd.AddCommand(evalCmd)
}

// loadOrDefault reads path, falling back to the built-in defaults when the
// file does not exist.
func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// evalFiles evaluates every scenario in files and writes the summaries to w.
func (a *app) evalFiles(ctx context.Context, w io.Writer, files []string, indent bool) error {
	var scenarios []sim.Scenario
	for _, f := range files {
		scs, err := sim.LoadScenarios(f)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, scs...)
	}
	a.logger.Info("evaluating", zap.Int("scenarios", len(scenarios)))

	sums, err := a.sim.EvaluateAll(ctx, scenarios)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	for _, s := range sums {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}
