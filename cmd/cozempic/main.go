// Command cozempic slims Claude Code session transcripts so the host
// agent's context window never reaches lossy auto-compaction.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/config"
	"github.com/junaidtitan/cozempic/internal/guard"
	"github.com/junaidtitan/cozempic/internal/logging"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/strategy"
)

// Exit codes per the CLI contract.
const (
	exitOK             = 0
	exitFailure        = 1
	exitBadArgument    = 2
	exitSessionMissing = 3
	exitGuardRefused   = 4
)

var (
	cfg        *config.Config
	log        *logging.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "cozempic",
	Short:         "Slim down Claude Code session transcripts",
	Long:          "cozempic analyzes and prunes Claude Code JSONL transcripts so the context window never saturates.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logCfg := logging.NewDefaultConfig()
		if cmd.Name() == "guard" {
			logCfg = logging.NewGuardConfig()
		}
		if lvl, lerr := logging.LevelFromString(cfg.Logging.Level); lerr == nil && cmd.Name() == "guard" {
			logCfg.Level = lvl
		}
		logCfg.Format = cfg.Logging.Format
		log, err = logging.NewLogger(logCfg)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/cozempic/config.yaml)")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newCurrentCmd())
	rootCmd.AddCommand(newDiagnoseCmd())
	rootCmd.AddCommand(newTreatCmd())
	rootCmd.AddCommand(newStrategyCmd())
	rootCmd.AddCommand(newReloadCmd())
	rootCmd.AddCommand(newCheckpointCmd())
	rootCmd.AddCommand(newGuardCmd())
	rootCmd.AddCommand(newFormularyCmd())
}

func main() {
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	if log != nil {
		_ = log.Sync()
	}
}

// normalizeArgs rewrites the single-dash -rx spelling the CLI contract uses
// into the double-dash form pflag understands.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "-rx" {
			out[i] = "--rx"
		} else {
			out[i] = a
		}
	}
	return out
}

// exitCode maps error kinds to the documented exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return exitSessionMissing
	case errors.Is(err, session.ErrAmbiguous):
		return exitBadArgument
	case errors.Is(err, guard.ErrLockHeld), errors.Is(err, guard.ErrBreakerTripped):
		return exitGuardRefused
	case isBadArgument(err):
		return exitBadArgument
	default:
		return exitFailure
	}
}

func isBadArgument(err error) bool {
	var unknown strategy.ErrUnknownStrategy
	if errors.As(err, &unknown) {
		return true
	}
	var bad badArgumentError
	return errors.As(err, &bad)
}

// badArgumentError marks user-input errors (unknown prescription, bad mode).
type badArgumentError struct{ msg string }

func (e badArgumentError) Error() string { return e.msg }

func badArgf(format string, args ...any) error {
	return badArgumentError{msg: fmt.Sprintf(format, args...)}
}

// strategyConfig maps the file/env strategy settings plus the --thinking-mode
// flag onto the catalog config.
func strategyConfig(thinkingMode string) (*strategy.Config, error) {
	sc := strategy.DefaultConfig()
	sc.ThinkingMode = cfg.Strategy.ThinkingMode
	sc.ToolOutputMaxBytes = cfg.Strategy.ToolOutputMaxBytes
	sc.ToolOutputMaxLines = cfg.Strategy.ToolOutputMaxLines
	sc.DocumentDedupMinBytes = cfg.Strategy.DocumentDedupMinSize
	sc.MegaBlockMaxBytes = cfg.Strategy.MegaBlockMaxBytes
	if thinkingMode != "" {
		switch thinkingMode {
		case "remove", "truncate", "signature-only":
			sc.ThinkingMode = thinkingMode
		default:
			return nil, badArgf("invalid --thinking-mode %q (remove, truncate, signature-only)", thinkingMode)
		}
	}
	return sc, nil
}
