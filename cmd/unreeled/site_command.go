package main

import (
	"github.com/spf13/cobra"

	"unreeled/internal/site"
)

func newSiteCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "site",
		Short: "Render the static calendar site from day artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}
			if err := site.NewBuilder(cfg, logger).Build(); err != nil {
				return err
			}
			cmd.Printf("site written to %s\n", cfg.Site.OutputDir)
			return nil
		},
	}
}
