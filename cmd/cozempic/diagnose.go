package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/diagnose"
	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/tokens"
)

const sessionArgHelp = "session: full UUID, unique prefix, file path, or 'current'"

func newDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose <session>",
		Short: "Analyze bloat sources in a session (read-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.Resolve(cfg.Paths.ClaudeDir, args[0])
			if err != nil {
				return err
			}
			return runDiagnosis(sess)
		},
	}
	return cmd
}

func runDiagnosis(sess *session.Session) error {
	seq, warnings, err := record.ReadFile(sess.Path)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Printf("warning: line %d: %s\n", w.Line, w.Err)
	}

	sc, err := strategyConfig("")
	if err != nil {
		return err
	}
	rep, err := diagnose.Analyze(seq, sc)
	if err != nil {
		return err
	}
	printDiagnosis(rep, sess)
	return nil
}

func printDiagnosis(rep *diagnose.Report, sess *session.Session) {
	fmt.Printf("\nPatient: %s\n", sess.ID)
	fmt.Printf("Weight:  %s (%d records)\n", fmtBytes(rep.TotalBytes), rep.TotalRecords)
	fmt.Printf("Tokens:  %s (%s)\n", tokens.FormatCount(rep.Estimate.Total), rep.Estimate.Method)
	fmt.Printf("Context: %s\n\n", contextBar(rep.Estimate.ContextPct, 20))

	fmt.Println("Vital signs:")
	fmt.Printf("  progress ticks:      %6d\n", rep.ProgressTicks)
	fmt.Printf("  file-history snaps:  %6d\n", rep.FileHistorySnaps)
	fmt.Printf("  system reminders:    %6d\n", rep.ReminderTags)
	fmt.Printf("  thinking blocks:     %6d (%s)\n", rep.ThinkingBlocks, fmtBytes(rep.ThinkingBytes))
	fmt.Printf("  signatures:          %10s\n", fmtBytes(rep.SignatureBytes))
	fmt.Printf("  tool results:        %10s (%d oversized)\n", fmtBytes(rep.ToolResultBytes), rep.OversizedResults)
	if rep.BytesPerToken > 0 {
		fmt.Printf("  calibrated ratio:    %.2f bytes/token\n", rep.BytesPerToken)
	}
	fmt.Println()

	tw := newTable()
	tw.AppendHeader(table.Row{"Kind", "Records", "Bytes", "Share"})
	for _, k := range rep.Kinds {
		tw.AppendRow(table.Row{string(k.Kind), k.Count, fmtBytes(k.Bytes), fmtPct(k.Bytes, rep.TotalBytes)})
	}
	tw.Render()
	fmt.Println()

	fmt.Println("Heaviest records:")
	for _, h := range rep.Heavy {
		fmt.Printf("  record %-7d %-22s %s\n", h.Index, string(h.Kind), fmtBytes(int64(h.Bytes)))
	}
	fmt.Println()

	fmt.Println("Projected savings (measured, dry-run):")
	for _, p := range rep.Projections {
		fmt.Printf("  %-12s %10s (%.1f%%)\n", p.Prescription, fmtBytes(p.BytesSaved), p.SavedPct)
	}
	fmt.Println()
}
