package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/tokens"
)

func newCurrentCmd() *cobra.Command {
	var diagnoseFlag bool

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the session for this shell and project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.FindCurrent(cfg.Paths.ClaudeDir, "")
			if err != nil {
				return err
			}

			fmt.Printf("\nCurrent session:\n")
			fmt.Printf("  ID:       %s\n", sess.ID)
			fmt.Printf("  Size:     %s (%d records)\n", fmtBytes(sess.Size), sess.Lines)
			if est, ok := tokens.QuickEstimate(sess.Path); ok {
				pct := float64(est) / float64(tokens.ContextWindow) * 100
				fmt.Printf("  Tokens:   %s %s\n", tokens.FormatCount(est), contextBar(pct, 20))
			}
			fmt.Printf("  Project:  %s\n", sess.Project)
			fmt.Printf("  Path:     %s\n", sess.Path)
			fmt.Printf("  Modified: %s\n\n", sess.ModTime.Format("2006-01-02 15:04:05"))

			if diagnoseFlag {
				return runDiagnosis(sess)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&diagnoseFlag, "diagnose", "d", false, "also run diagnosis")
	return cmd
}
