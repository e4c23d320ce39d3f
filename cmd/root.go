package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mriscan/braintumor-go/cmd/classify"
	"github.com/mriscan/braintumor-go/cmd/config"
	"github.com/mriscan/braintumor-go/cmd/serve"
	"github.com/mriscan/braintumor-go/internal/buildinfo"
	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/logger"
)

// RootCommand creates and returns the root command. Subcommands receive
// settings, which are filled in before any of them runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "braintumor",
		Short:         "Brain tumor MRI classification service",
		Version:       buildinfo.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	configCmd := config.Command()
	subcommands := []*cobra.Command{
		serve.Command(settings),
		classify.Command(settings),
		configCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config subcommands manage the file and must work without one
		if isSubcommandOf(cmd, configCmd) {
			return nil
		}
		if err := conf.BindFlags(cmd.Flags()); err != nil {
			return err
		}
		return initialize(configFile, settings)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if err := logger.Global().Close(); err != nil {
			fmt.Printf("error closing logger: %v\n", err)
		}
	}

	return rootCmd
}

// initialize loads the configuration and installs the central logger.
func initialize(configFile string, settings *conf.Settings) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	central.Module("main").Debug("configuration loaded",
		logger.String("profile", settings.Main.Profile),
		logger.String("config_file", viper.ConfigFileUsed()))
	return nil
}

func isSubcommandOf(cmd, parent *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == parent {
			return true
		}
	}
	return false
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml, default searches ., ~/.config/braintumor and /etc/braintumor")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("profile", "", "Configuration profile: development, production or testing")

	for key, flag := range map[string]string{
		"main.debug":   "debug",
		"main.profile": "profile",
	} {
		if err := conf.AnnotateFlag(flags, flag, key); err != nil {
			return fmt.Errorf("error annotating flag %s: %w", flag, err)
		}
	}

	return nil
}
