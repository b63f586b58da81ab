// Command ledger is the client side of the ingestion pipeline: it links a
// bank through the Plaid proxy and keeps the resulting transactions in a
// local SQLite ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"expense-ledger/src/config"
	"expense-ledger/src/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.ClientConfig
	log     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zerolog.Nop()}
	config.SetClientDefaults(a.v)

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Expense ledger fed by Plaid transactions",
		Long: `ledger links a bank account through the Plaid demo proxy, pulls its
transactions with backoff while Plaid finishes indexing, and stores them as
income and expense rows in a local SQLite ledger.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/ledger/config.yaml)")
	flags.String("proxy-url", "", "base URL of the Plaid proxy")
	flags.String("demo-key", "", "value sent in the x-demo-key header")
	flags.String("db", "", "path of the ledger database")
	flags.String("prefs", "", "path of the session preferences file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")

	// Bind flags to viper
	_ = a.v.BindPFlag(config.KeyProxyURL, flags.Lookup("proxy-url"))
	_ = a.v.BindPFlag(config.KeyDemoKey, flags.Lookup("demo-key"))
	_ = a.v.BindPFlag(config.KeyDatabasePath, flags.Lookup("db"))
	_ = a.v.BindPFlag(config.KeyPrefsPath, flags.Lookup("prefs"))
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))

	// Add commands
	rootCmd.AddCommand(a.linkTokenCmd())
	rootCmd.AddCommand(a.simulateCmd())
	rootCmd.AddCommand(a.exchangeCmd())
	rootCmd.AddCommand(a.linkResultCmd())
	rootCmd.AddCommand(a.refreshCmd())
	rootCmd.AddCommand(a.syncCmd())
	rootCmd.AddCommand(a.signOutCmd())
	rootCmd.AddCommand(a.listCmd())
	rootCmd.AddCommand(a.countCmd())
	rootCmd.AddCommand(a.deleteCmd())
	rootCmd.AddCommand(a.demoCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		a.v.AddConfigPath(fmt.Sprintf("%s/.config/ledger", home))
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	// Environment variables: LEDGER_PROXY_URL, LEDGER_PROXY_DEMO_KEY, ...
	a.v.SetEnvPrefix("LEDGER")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	a.cfg = config.LoadClient(a.v)
	a.log = logger.New(a.cfg.LogLevel, a.cfg.LogFormat)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ledger %s\n", version)
		},
	}
}
