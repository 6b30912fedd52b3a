package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thpool/internal/chaos"
	"thpool/internal/scenario"

	"github.com/spf13/cobra"
)

// runFlags は run サブコマンドのフラグ
type runFlags struct {
	preset      string
	workers     int
	jobs        int
	producers   int
	jobDuration time.Duration
	queueCap    int
	maxQueueCap int
	announce    bool
	chaos       bool
	chaosRatio  float64
	attacks     []string
}

func newRunCmd(opts *options) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workload against a worker pool",
		Long: `Run a workload against a worker pool and print a report.

Settings are layered: the config file first, then --preset, then the
individual flags. With neither a config file nor --preset the demo
workload runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildScenarioConfig(cmd, opts, flags)
			if err != nil {
				return err
			}
			return runScenario(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.preset, "preset", "p", "", "Preset scenario (see 'thpool presets')")
	f.IntVarP(&flags.workers, "workers", "w", 0, "Number of worker threads (0 keeps every job queued)")
	f.IntVarP(&flags.jobs, "jobs", "n", 0, "Number of jobs to submit")
	f.IntVar(&flags.producers, "producers", 0, "Number of goroutines submitting jobs")
	f.DurationVarP(&flags.jobDuration, "job-duration", "d", 0, "Time each job sleeps")
	f.IntVar(&flags.queueCap, "queue-capacity", 0, "Initial job queue capacity")
	f.IntVar(&flags.maxQueueCap, "max-queue-capacity", 0, "Job queue capacity limit (0 is unbounded)")
	f.BoolVar(&flags.announce, "announce", false, "Print a favorite number from every job")
	f.BoolVar(&flags.chaos, "chaos", false, "Inject faults into jobs")
	f.Float64Var(&flags.chaosRatio, "chaos-ratio", 0, "Share of jobs that get a fault (0.0-1.0)")
	f.StringSliceVar(&flags.attacks, "attacks", nil, "Fault kinds: delay, panic")

	return cmd
}

// buildScenarioConfig は設定ファイル、プリセット、フラグの順に設定を重ねる
func buildScenarioConfig(cmd *cobra.Command, opts *options, flags *runFlags) (scenario.Config, error) {
	cfg := scenario.DemoScenario()

	if opts.file != nil {
		fileCfg, err := opts.file.ToScenarioConfig()
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	if flags.preset != "" {
		preset, ok := scenario.GetPreset(flags.preset)
		if !ok {
			return cfg, fmt.Errorf("unknown preset: %s (available: %v)", flags.preset, scenario.ListPresets())
		}
		cfg = preset
	}

	changed := cmd.Flags().Changed
	if changed("workers") {
		cfg.Workers = flags.workers
	}
	if changed("jobs") {
		cfg.Jobs = flags.jobs
	}
	if changed("producers") {
		cfg.Producers = flags.producers
	}
	if changed("job-duration") {
		cfg.JobDuration = flags.jobDuration
	}
	if changed("queue-capacity") {
		cfg.QueueCapacity = flags.queueCap
	}
	if changed("max-queue-capacity") {
		cfg.MaxQueueCapacity = flags.maxQueueCap
	}
	if changed("announce") {
		cfg.Announce = flags.announce
	}
	if changed("chaos") {
		cfg.EnableChaos = flags.chaos
	}
	if changed("chaos-ratio") {
		cfg.ChaosRatio = flags.chaosRatio
	}
	if changed("attacks") {
		cfg.AttackTypes = nil
		for _, name := range flags.attacks {
			attack, ok := chaos.ParseAttackType(name)
			if !ok {
				return cfg, fmt.Errorf("unknown attack type: %s", name)
			}
			cfg.AttackTypes = append(cfg.AttackTypes, attack)
		}
	}

	return cfg, cfg.Validate()
}

func runScenario(cmd *cobra.Command, cfg scenario.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newConsole(cmd.OutOrStdout())
	out.header(cfg)

	engine := scenario.New(cfg)
	engine.SetOutput(cmd.OutOrStdout())

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	// シグナルで中断した場合もレポートは出す
	fmt.Fprintln(cmd.OutOrStdout(), result.Report())
	out.summary(result)
	return nil
}
