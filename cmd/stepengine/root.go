package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "stepengine",
		Short:         "stepengine executes workflow steps through intent handlers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Settings file (default ~/.stepengine/settings.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newIntentsCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// config loads the layered configuration and applies flag overrides.
func (f *rootFlags) config() (Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	return cfg, cfg.validate()
}
