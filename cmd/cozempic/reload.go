package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/guard"
	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/strategy"
	"github.com/junaidtitan/cozempic/internal/tokens"
)

func newReloadCmd() *cobra.Command {
	var (
		rx           string
		thinkingMode string
	)

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Treat the current session, then auto-resume the host agent after exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.FindCurrent(cfg.Paths.ClaudeDir, "")
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

			seq, _, err := record.ReadFile(sess.Path)
			if err != nil {
				return err
			}
			preEst := tokens.EstimateSequence(seq)

			out, report, err := strategy.Run(seq, names, sc)
			if err != nil {
				return err
			}
			printRunReport(rx, report, preEst, tokens.EstimateSequence(out))

			backup, err := session.Save(sess.Path, out, true, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Treatment applied to %s\n", sess.Path)
			fmt.Printf("Backup: %s\n", backup)

			// Leave a recap note for the resumed terminal.
			recapPath := filepath.Join(os.TempDir(), "cozempic_recap_"+shortSessionID(sess.ID)+".txt")
			recap := fmt.Sprintf("cozempic reload recap\nsession: %s\nsaved: %s (%d removed, %d modified)\nbackup: %s\n",
				sess.ID, fmtBytes(report.BytesSaved()), report.Removed(), report.Modified(), backup)
			if err := session.WriteTextAtomic(recapPath, []byte(recap)); err == nil {
				fmt.Printf("Recap: %s\n", recapPath)
			}

			hostPID := guard.FindHostPID()
			if hostPID == 0 {
				fmt.Println("WARNING: could not detect the host agent process.")
				fmt.Println("Treatment was applied, but the auto-resume watcher was not started.")
				fmt.Println("Restart manually with: claude --resume " + sess.ID)
				return nil
			}

			projectDir := session.PathFromSlug(sess.Project)
			if info, err := os.Stat(projectDir); err != nil || !info.IsDir() {
				projectDir, _ = os.Getwd()
			}
			if err := guard.SpawnReloadWatcher(hostPID, projectDir, sess.ID); err != nil {
				return err
			}
			fmt.Printf("Watcher spawned (watching host PID %d).\n", hostPID)
			fmt.Println("Now type /exit — a new terminal will open with 'claude --resume'.")
			return nil
		},
	}

	cmd.Flags().StringVar(&rx, "rx", "standard", "prescription: gentle, standard, aggressive")
	cmd.Flags().StringVar(&thinkingMode, "thinking-mode", "", "thinking block mode")
	return cmd
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
