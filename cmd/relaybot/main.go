package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relaybot",
	Short: "Relay chat between channels on different networks",
	Long: `relaybot connects to every configured network and relays messages
between bound channels. Without a subcommand it runs the relay.`,
	SilenceUsage: true,
	RunE:         runRelay,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "relaybot.yaml", "configuration file")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.Flags().String("journal", "", "SQLite journal path, overrides the configuration")
	rootCmd.Flags().String("metrics-addr", "", "listen address for /metrics, overrides the configuration")

	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("journal", rootCmd.Flags().Lookup("journal"))
	viper.BindPFlag("metrics_addr", rootCmd.Flags().Lookup("metrics-addr"))

	rootCmd.AddCommand(checkCmd, secretCmd)
}

// initConfig lets RELAYBOT_* variables stand in for the flags
func initConfig() {
	viper.SetEnvPrefix("RELAYBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("config")
	if !rootCmd.PersistentFlags().Changed("config") && viper.IsSet("config") {
		configPath = viper.GetString("config")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
