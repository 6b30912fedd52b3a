package main

import (
	"fmt"
	"io"

	"thpool/internal/scenario"

	"github.com/fatih/color"
)

// console は端末向けの色付き出力
type console struct {
	out io.Writer

	title *color.Color
	label *color.Color
	good  *color.Color
	warn  *color.Color
	bad   *color.Color
}

func newConsole(out io.Writer) *console {
	return &console{
		out:   out,
		title: color.New(color.Bold, color.FgCyan),
		label: color.New(color.Bold),
		good:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed, color.Bold),
	}
}

func (c *console) header(cfg scenario.Config) {
	c.title.Fprintln(c.out, "=== thpool ===")
	fmt.Fprintf(c.out, "%s %s\n", c.label.Sprint("Scenario: "), cfg.Name)
	if cfg.Description != "" {
		fmt.Fprintf(c.out, "%s %s\n", c.label.Sprint("About:    "), cfg.Description)
	}
	fmt.Fprintf(c.out, "%s %d workers, %d jobs, %d producers, %v per job\n",
		c.label.Sprint("Workload: "), cfg.Workers, cfg.Jobs, cfg.Producers, cfg.JobDuration)
	if cfg.EnableChaos {
		c.warn.Fprintf(c.out, "Chaos:     %.0f%% of jobs, attacks %v\n", cfg.ChaosRatio*100, cfg.AttackTypes)
	}
	fmt.Fprintln(c.out)
}

func (c *console) summary(result *scenario.Result) {
	switch {
	case result.Cancelled:
		c.warn.Fprintf(c.out, "Cancelled: %d of %d jobs completed, %d discarded\n",
			result.Completed, result.JobsPlanned, result.Discarded)
	case result.Panicked > 0 || result.Rejected > 0:
		c.bad.Fprintf(c.out, "Finished with failures: %d panicked, %d rejected\n",
			result.Panicked, result.Rejected)
	default:
		c.good.Fprintf(c.out, "All %d jobs completed\n", result.Completed)
	}
}
