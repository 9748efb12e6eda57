package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/junaidtitan/cozempic/internal/strategy"
)

func newFormularyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formulary",
		Short: "Show all strategies and prescriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := newTable()
			tw.AppendHeader(table.Row{"Strategy", "Tier", "Expected", "Description"})
			for _, info := range strategy.All() {
				tw.AppendRow(table.Row{info.Name, string(info.Tier), info.ExpectedSavings, info.Description})
			}
			tw.Render()

			fmt.Println("\nExpected savings are advisory; every report shows measured deltas.")
			fmt.Println("\nPrescriptions:")
			for _, rx := range strategy.PrescriptionNames() {
				names, _ := strategy.Prescription(rx)
				fmt.Printf("  %-12s %s\n", rx, strings.Join(names, ", "))
			}
			return nil
		},
	}
}
