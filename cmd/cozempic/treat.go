package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/strategy"
	"github.com/junaidtitan/cozempic/internal/tokens"
)

func newTreatCmd() *cobra.Command {
	var (
		rx           string
		execute      bool
		thinkingMode string
	)

	cmd := &cobra.Command{
		Use:   "treat <session>",
		Short: "Run a prescription over a session (dry-run by default)",
		Long:  "Runs the chosen prescription and reports per-strategy savings.\n" + sessionArgHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.Resolve(cfg.Paths.ClaudeDir, args[0])
			if err != nil {
				return err
			}
			names, ok := strategy.Prescription(rx)
			if !ok {
				return badArgf("unknown prescription %q (gentle, standard, aggressive)", rx)
			}
			sc, err := strategyConfig(thinkingMode)
			if err != nil {
				return err
			}

			seq, warnings, err := record.ReadFile(sess.Path)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Printf("warning: line %d: %s\n", w.Line, w.Err)
			}
			preEst := tokens.EstimateSequence(seq)

			out, report, err := strategy.Run(seq, names, sc)
			if err != nil {
				return err
			}
			postEst := tokens.EstimateSequence(out)

			printRunReport(rx, report, preEst, postEst)

			if !execute {
				fmt.Println("DRY RUN — no changes made. Use --execute to apply.")
				return nil
			}

			backup, err := session.Save(sess.Path, out, true, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Treatment applied to %s\n", sess.Path)
			fmt.Printf("Backup: %s\n", backup)
			fmt.Printf("Final size: %s\n", fmtBytes(report.BytesAfter))
			return nil
		},
	}

	cmd.Flags().StringVar(&rx, "rx", "standard", "prescription: gentle, standard, aggressive")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply changes (default is dry-run)")
	cmd.Flags().StringVar(&thinkingMode, "thinking-mode", "", "thinking block mode: remove, truncate, signature-only")
	return cmd
}

func printRunReport(rx string, report *strategy.RunReport, pre, post tokens.Estimate) {
	fmt.Printf("\nPrescription: %s\n", rx)
	fmt.Printf("Before: %s (%d records)\n", fmtBytes(report.BytesBefore), report.RecordsBefore)
	fmt.Printf("After:  %s (%d records)\n", fmtBytes(report.BytesAfter), report.RecordsAfter)
	fmt.Printf("Saved:  %s (%s) — %d removed, %d modified\n",
		fmtBytes(report.BytesSaved()), fmtPct(report.BytesSaved(), report.BytesBefore),
		report.Removed(), report.Modified())
	if pre.Total > 0 {
		fmt.Printf("Tokens: %s -> %s (%s)\n",
			tokens.FormatCount(pre.Total), tokens.FormatCount(post.Total), pre.Method)
	}
	fmt.Println()

	fmt.Println("Strategy results:")
	for _, res := range report.Results {
		fmt.Printf("  %-25s %10s saved (%d removed, %d modified)  %s\n",
			res.Strategy, fmtBytes(res.BytesSaved), res.Removed, res.Modified, res.Summary)
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, o := range report.Orphans {
		fmt.Printf("  orphan: %s\n", o)
	}
	fmt.Println()
}
