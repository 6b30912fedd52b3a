package main

import (
	"errors"
	"fmt"

	"thpool/internal/config"
	"thpool/internal/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// options はサブコマンド間で共有するフラグと読み込んだ設定
type options struct {
	configPath string
	logLevel   string
	noColor    bool

	// file は設定ファイルが無い場合 nil
	file *config.FileConfig
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "thpool",
		Short: "A fixed-size worker pool fed by a growable job queue.",
		Long: `A fixed-size worker pool fed by a growable job queue.

Run a workload against the pool, list the built-in presets or serve the
status API. For example:
  thpool run                      # the demo: 4 workers, 12 five-second jobs
  thpool run --preset burst
  thpool run --workers 8 --jobs 1000 --producers 4 --job-duration 2ms
  thpool serve --addr :3000`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// config サブコマンドは壊れた設定ファイルでも動かす
			for c := cmd; c != nil; c = c.Parent() {
				if c.Name() == "config" {
					return opts.setupLogging(cmd)
				}
			}
			if err := opts.loadConfig(); err != nil {
				return err
			}
			return opts.setupLogging(cmd)
		},
	}
	root.SetVersionTemplate(`{{printf "thpool version %s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (YAML/JSON/TOML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newRunCmd(opts),
		newPresetsCmd(),
		newServeCmd(opts),
		newConfigCmd(opts),
	)

	return root
}

// loadConfig は --config か XDG 設定ディレクトリの設定ファイルを読み込む
func (o *options) loadConfig() error {
	path := o.configPath
	if path == "" {
		found, err := config.DefaultPath()
		if errors.Is(err, config.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		path = found
	}

	file, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := file.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger.Debug("", "Loaded config from %s", path)
	o.file = file
	return nil
}

// setupLogging はログレベルと色付けを設定する
func (o *options) setupLogging(cmd *cobra.Command) error {
	level := logger.LevelInfo
	if o.file != nil {
		l, err := o.file.LogLevel()
		if err != nil {
			return err
		}
		level = l
	}
	if cmd.Flags().Changed("log-level") {
		l, err := logger.ParseLevel(o.logLevel)
		if err != nil {
			return err
		}
		level = l
	}
	logger.Default.SetLevel(level)

	if o.noColor || (o.file != nil && o.file.Log.NoColor) {
		color.NoColor = true
		logger.Default.SetColor(false)
	}
	return nil
}
