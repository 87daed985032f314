package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbot/reshard/internal/config"
	"github.com/turbot/reshard/internal/constants"
	"github.com/turbot/reshard/internal/error_helpers"
	"github.com/turbot/reshard/internal/logger"
)

var exitCode int

// Build the cobra command that handles our command line tool.
func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reshard [--version] [--help] COMMAND [args]",
		Short:         constants.ReshardShortDescription,
		Long:          constants.ReshardLongDescription,
		Version:       viper.GetString("main.version"),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.SetVersionTemplate("Reshard v{{.Version}}\n")
	rootCmd.PersistentFlags().String(constants.ArgConfig, "", "Path to a config file (yaml, toml or json)")

	rootCmd.AddCommand(
		runCmd(),
		discoverCmd(),
	)

	// disable auto completion generation, since we don't want to support
	// powershell yet - and there's no way to disable powershell in the default generator
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// initConfig binds the flags of the command being run to viper and loads env vars and the config file
func initConfig(cmd *cobra.Command) error {
	logger.Initialize(viper.GetString("main.version"))

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	configFile, _ := cmd.Flags().GetString(constants.ArgConfig)
	if err := config.InitViper(viper.GetViper(), configFile); err != nil {
		return err
	}
	slog.Debug("initialised config", "command", cmd.Name(), "config file", configFile)
	return nil
}

func Execute() int {
	exitCode = constants.ExitCodeSuccess
	rootCmd := rootCommand()
	if err := rootCmd.Execute(); err != nil {
		error_helpers.ShowError(rootCmd.ErrOrStderr(), err)
		if exitCode == constants.ExitCodeSuccess {
			exitCode = constants.ExitCodeFatal
		}
	}
	return exitCode
}
