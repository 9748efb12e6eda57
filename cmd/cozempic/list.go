package main

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/tokens"
)

func newListCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with sizes and token estimates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := session.List(cfg.Paths.ClaudeDir, project)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			sort.Slice(sessions, func(i, j int) bool { return sessions[i].Size > sessions[j].Size })

			tw := newTable()
			tw.AppendHeader(table.Row{"Session ID", "Size", "Tokens", "Records", "Modified", "Project"})
			var total int64
			for _, s := range sessions {
				tok := "-"
				if est, ok := tokens.QuickEstimate(s.Path); ok {
					tok = tokens.FormatCount(est)
				}
				tw.AppendRow(table.Row{
					s.ID,
					fmtBytes(s.Size),
					tok,
					s.Lines,
					s.ModTime.Format("2006-01-02 15:04"),
					s.Project,
				})
				total += s.Size
			}
			tw.Render()
			fmt.Printf("\n%d sessions, %s total\n", len(sessions), fmtBytes(total))
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "filter by project name")
	return cmd
}
