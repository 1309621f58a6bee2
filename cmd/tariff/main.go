package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tariff-receipt/internal/cli"
	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/config"
)

var version = "dev"

func newRootCmd(open appOpener) *cobra.Command {
	root := &cobra.Command{
		Use:   "tariff",
		Short: "🧾 Tariff scenarios and their price effects",
		Long: `tariff: Edit bilateral tariff rates across the HS hierarchy, propagate
them through sections, chapters and HS4 headings, and total the resulting
price effects on a per-country receipt.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file (default: $HOME/.config/tariff/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")

	root.AddCommand(scenarioCmd(open))
	root.AddCommand(editCmd(open))
	root.AddCommand(showCmd(open))
	root.AddCommand(applyCmd(open))
	root.AddCommand(receiptCmd(open))
	root.AddCommand(worldCmd(open))
	root.AddCommand(resetCmd(open))
	root.AddCommand(exportCmd(open))
	root.AddCommand(browseCmd(open))
	root.AddCommand(authCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(versionCmd())

	return root
}

func main() {
	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx, stop := interrupts.HandleInterrupts(context.Background(), "Changes already saved are kept.")

	root := newRootCmd(openApp)
	_ = viper.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	root.PersistentPreRunE = initConfig

	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !interrupts.WasInterrupted() || !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, cli.FormatError(common.UserMessage(err)))
			slog.Debug("command failed", "error", err)
		}
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Root().PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}

		viper.AddConfigPath(dir)
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())

	// Environment variables
	viper.SetEnvPrefix("TARIFF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := common.SetupLogger(viper.GetString("logging.level"), viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tariff version "+version)
		},
	}
}
