package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"thpool/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(opts), newConfigPathCmd(opts))
	return cmd
}

func newConfigInitCmd(opts *options) *cobra.Command {
	var (
		format string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file populated with the defaults",
		Long: `Write a config file populated with the defaults.

The file goes to --config when given, otherwise to the XDG config
directory (for example ~/.config/thpool/config.yaml).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				p, err := config.WritablePath()
				if err != nil {
					return err
				}
				path = strings.TrimSuffix(p, filepath.Ext(p)) + "." + format
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.Default().Save(path); err != nil {
				return err
			}

			out := newConsole(cmd.OutOrStdout())
			out.good.Fprintf(out.out, "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "File format: yaml, json, toml")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigPathCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file that would be loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				fmt.Fprintln(cmd.OutOrStdout(), opts.configPath)
				return nil
			}
			path, err := config.DefaultPath()
			if errors.Is(err, config.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no config file found")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
