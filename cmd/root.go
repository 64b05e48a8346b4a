// Package cmd provides the finlern command line: the HTTP server, schema
// migration and configuration inspection.
//
// Configuration sources, highest priority first:
//
//  1. command-line flags (--config, --port, ...)
//  2. environment variables (SERVER_PORT, DATABASE_HOST, ...) and .env
//  3. the config file: --config, FINLERN_CONFIG_FILE or ./finlern.yml
//  4. built-in defaults
package cmd

import (
	"fmt"

	"finlern/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "finlern",
	Short: "Enrollment intake service for the Finlern language school",
	Long: `finlern serves the enrollment form API of the language school.

Every submission passes rate limiting, an origin check, bot detection and
field validation before it is stored and the office is notified.

  finlern serve            Start the HTTP server
  finlern migrate          Create or refresh the database schema
  finlern config show      Print the effective configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Prepare(viper.GetViper(), cfgFile)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./finlern.yml, or FINLERN_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, console)")
	mustBindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
	})
}

// mustBindFlags binds config keys to flags of fs. Flags are only consulted
// when set on the command line.
func mustBindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		flag := fs.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag --%s is not defined", name))
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("bind --%s: %v", name, err))
		}
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
