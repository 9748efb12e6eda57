package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/guard"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/strategy"
)

func newGuardCmd() *cobra.Command {
	var (
		thresholdMB     float64
		softThresholdMB float64
		thresholdTokens int
		intervalSecs    int
		rx              string
		noReload        bool
		noReactive      bool
		daemon          bool
	)

	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Background sentinel: checkpoint continuously, prune before compaction fires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.FindCurrent(cfg.Paths.ClaudeDir, "")
			if err != nil {
				return err
			}

			gcfg := guardConfigFromFile()
			if cmd.Flags().Changed("threshold") {
				gcfg.HardBytes = int64(thresholdMB * 1024 * 1024)
				// Soft follows hard unless pinned explicitly.
				if !cmd.Flags().Changed("soft-threshold") {
					gcfg.SoftBytes = int64(thresholdMB * 0.6 * 1024 * 1024)
				}
			}
			if cmd.Flags().Changed("soft-threshold") {
				gcfg.SoftBytes = int64(softThresholdMB * 1024 * 1024)
			}
			if cmd.Flags().Changed("threshold-tokens") {
				gcfg.TokenThreshold = thresholdTokens
			}
			if cmd.Flags().Changed("interval") {
				gcfg.Interval = secondsDuration(intervalSecs)
			}
			if cmd.Flags().Changed("rx") {
				gcfg.HardPrescription = rx
			}
			if noReload {
				gcfg.Reload = false
			}
			if noReactive {
				gcfg.Reactive = false
			}
			if gcfg.SoftBytes >= gcfg.HardBytes {
				return badArgf("soft threshold (%s) must be below hard threshold (%s)",
					fmtBytes(gcfg.SoftBytes), fmtBytes(gcfg.HardBytes))
			}
			if _, ok := strategy.Prescription(gcfg.HardPrescription); !ok {
				return badArgf("unknown prescription %q (gentle, standard, aggressive)", gcfg.HardPrescription)
			}

			if daemon {
				return respawnDetached()
			}

			g, err := guard.New(sess, gcfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return g.Run(ctx)
		},
	}

	cmd.Flags().Float64Var(&thresholdMB, "threshold", 50, "hard threshold in MB (full prune + reload)")
	cmd.Flags().Float64Var(&softThresholdMB, "soft-threshold", 0, "soft threshold in MB (gentle prune, no reload; default 60% of --threshold)")
	cmd.Flags().IntVar(&thresholdTokens, "threshold-tokens", 0, "hard threshold in tokens (fires alongside --threshold)")
	cmd.Flags().IntVar(&intervalSecs, "interval", 30, "check interval in seconds")
	cmd.Flags().StringVar(&rx, "rx", "standard", "hard prescription: gentle, standard, aggressive")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "prune without auto-reload at hard threshold")
	cmd.Flags().BoolVar(&noReactive, "no-reactive", false, "disable the reactive overflow watcher")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "run in the background")
	return cmd
}

func secondsDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// guardConfigFromFile maps the loaded config file onto guard.Config. Reload
// and reactive are always on here: the guard.reload and guard.reactive config
// keys are not read, and only --no-reload and --no-reactive turn them off.
func guardConfigFromFile() guard.Config {
	sc, _ := strategyConfig("")
	return guard.Config{
		HardBytes:        int64(cfg.Guard.ThresholdMB * 1024 * 1024),
		SoftBytes:        int64(cfg.Guard.SoftThresholdMB * 1024 * 1024),
		TokenThreshold:   cfg.Guard.ThresholdTokens,
		Interval:         cfg.Guard.Interval.Duration(),
		HardPrescription: cfg.Guard.Prescription,
		Reload:           true,
		Reactive:         true,
		BreakerMax:       cfg.Guard.BreakerMaxRecoveries,
		BreakerWindow:    cfg.Guard.BreakerWindow.Duration(),
		MetricsAddr:      cfg.Guard.MetricsAddr,
		TeamsDir:         cfg.Paths.TeamsDir,
		Strategy:         sc,
	}
}

// respawnDetached re-execs the guard without --daemon, detached from the
// terminal. The PID lock prevents double-starts.
func respawnDetached() error {
	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a == "--daemon" {
			continue
		}
		args = append(args, a)
	}
	child := exec.Command(os.Args[0], args...)
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	fmt.Printf("guard daemon started (pid %d)\n", child.Process.Pid)
	return child.Process.Release()
}
