// Package cmd implements the serial2epub command line.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"serial2epub/config"
	"serial2epub/logger"
)

var (
	cfg = config.Default()
	log = logger.Discard()
)

var RootCmd = &cobra.Command{
	Use:   "serial2epub",
	Short: "Download a serialized web story and package it as an EPUB",
	Long: "Download the chapters of a serialized web story, cache them locally and package them\n" +
		"as an EPUB 2 or EPUB 3 file.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cmd.Flags(), cfg); err != nil {
			return err
		}
		log = logger.New(logger.Config{
			Writer: cmd.ErrOrStderr(),
			Format: cfg.Log.Format,
			Level:  logger.ParseLevel(cfg.Log.Level),
		})
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	config.BindFlags(RootCmd.PersistentFlags(), cfg)
}
