package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/strategy"
)

func newStrategyCmd() *cobra.Command {
	var (
		verbose      bool
		execute      bool
		thinkingMode string
	)

	cmd := &cobra.Command{
		Use:   "strategy <name> <session>",
		Short: "Run a single strategy over a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, ok := strategy.Lookup(name); !ok {
				return strategy.ErrUnknownStrategy{Name: name}
			}
			sess, err := session.Resolve(cfg.Paths.ClaudeDir, args[1])
			if err != nil {
				return err
			}
			sc, err := strategyConfig(thinkingMode)
			if err != nil {
				return err
			}

			seq, _, err := record.ReadFile(sess.Path)
			if err != nil {
				return err
			}

			out, report, err := strategy.RunOne(seq, name, sc)
			if err != nil {
				return err
			}
			res := report.Results[0]

			fmt.Printf("\nStrategy: %s\n", res.Strategy)
			fmt.Printf("Savings:  %s (%s)\n", fmtBytes(res.BytesSaved), fmtPct(res.BytesSaved, report.BytesBefore))
			fmt.Printf("Actions:  %d (%d removed, %d modified)\n", len(res.Actions), res.Removed, res.Modified)
			fmt.Printf("Summary:  %s\n\n", res.Summary)

			if verbose {
				shown := res.Actions
				if len(shown) > 20 {
					shown = shown[:20]
				}
				for _, a := range shown {
					before := int64(0)
					for i := a.First; i <= a.Last && i < len(seq); i++ {
						before += int64(seq[i].Size())
					}
					after := int64(0)
					if a.Type != strategy.ActionDrop {
						after = int64(a.Replacement.Size())
					}
					fmt.Printf("  record %-7d %-14s %10s -> %-10s %s\n",
						a.First, a.Type, fmtBytes(before), fmtBytes(after), a.Reason)
				}
				if rest := len(res.Actions) - len(shown); rest > 0 {
					fmt.Printf("  ... and %d more actions\n", rest)
				}
				fmt.Println()
			}

			if !execute {
				fmt.Println("DRY RUN — no changes made. Use --execute to apply.")
				return nil
			}
			backup, err := session.Save(sess.Path, out, true, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Applied. Final size: %s\n", fmtBytes(report.BytesAfter))
			fmt.Printf("Backup: %s\n", backup)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show action details")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply changes")
	cmd.Flags().StringVar(&thinkingMode, "thinking-mode", "", "thinking block mode: remove, truncate, signature-only")
	return cmd
}
