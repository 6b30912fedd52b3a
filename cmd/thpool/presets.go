package main

import (
	"fmt"
	"text/tabwriter"

	"thpool/internal/scenario"

	"github.com/spf13/cobra"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in workload presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printPresets(cmd)
			return nil
		},
	}
}

func printPresets(cmd *cobra.Command) {
	out := newConsole(cmd.OutOrStdout())
	out.title.Fprintln(out.out, "Available presets:")

	w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tWORKERS\tJOBS\tPRODUCERS\tJOB TIME\tCHAOS\tDESCRIPTION")
	for _, name := range scenario.ListPresets() {
		preset, _ := scenario.GetPreset(name)
		chaosLabel := "-"
		if preset.EnableChaos {
			chaosLabel = fmt.Sprintf("%.0f%%", preset.ChaosRatio*100)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\t%s\t%s\n",
			out.good.Sprint(name), preset.Workers, preset.Jobs, preset.Producers,
			preset.JobDuration, chaosLabel, preset.Description)
	}
	_ = w.Flush()
}
