package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/team"
)

func newCheckpointCmd() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save team state from the current session (no pruning)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.FindCurrent(cfg.Paths.ClaudeDir, "")
			if err != nil {
				return err
			}

			seq, _, err := record.ReadFile(sess.Path)
			if err != nil {
				return err
			}
			state, err := team.ExtractAndMerge(seq, cfg.Paths.TeamsDir)
			if err != nil {
				fmt.Printf("warning: %v\n", err)
			}

			if state.IsEmpty() {
				fmt.Println("No team state detected.")
				return nil
			}

			path, err := team.WriteCheckpoint(state, sess.Path, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Checkpoint: %d subagents, %d teammates, %d tasks -> %s\n",
				len(state.Subagents), len(state.Teammates), len(state.Tasks), path)

			if show {
				fmt.Println()
				fmt.Println(state.Checkpoint(time.Now()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "print the team state after saving")
	return cmd
}
