package main

import (
	"github.com/spf13/cobra"

	"donations/internal/cli"
	"donations/internal/config"
	"donations/internal/log"
)

// env is shared by every subcommand. The runtime is opened lazily so that
// --help works without storage.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	rt     *cli.Runtime
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "donations-admin",
		Short:         "Manage donations from the command line",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentCLI)
			rt, err := cli.OpenApp(cmd.Context(), cfg, e.logger)
			if err != nil {
				return err
			}
			e.rt = rt
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.rt.Close()
		},
	}

	root.AddCommand(
		newAddCmd(e),
		newSummaryCmd(e),
		newRatesCmd(e),
		newBackupCmd(e),
		newRestoreCmd(e),
		newImportCmd(e),
		newExportCmd(e),
		newSheetsImportCmd(e),
		newSheetsExportCmd(e),
	)
	return root
}
