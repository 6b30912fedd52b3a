package main

import (
	"os"
	"os/signal"
	"syscall"

	"thpool/internal/api"
	"thpool/internal/config"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API, Prometheus metrics and WebSocket updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := opts.file
			if file == nil {
				file = &config.FileConfig{}
			}
			if !cmd.Flags().Changed("addr") {
				addr = file.ServerAddr()
			}
			interval, err := file.StatusInterval()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(addr)
			server.SetStatusInterval(interval)
			return server.Start(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultAddr, "Listen address")
	return cmd
}
