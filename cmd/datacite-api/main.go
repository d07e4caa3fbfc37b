package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"datacite-api/internal/config"
	"datacite-api/internal/datacite"
	"datacite-api/internal/metrics"
)

var version = "dev"

// cli carries the state shared by every command of one invocation.
type cli struct {
	v          *viper.Viper
	configFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}
	root := &cobra.Command{
		Use:   "datacite-api",
		Short: "DataCite DOI API",
		Long: `datacite-api exposes the DOI functions of the DataCite REST API behind a
small JSON API. Every request is authorized by the accounts service unless
NO_AUTH is set.

Configuration comes from environment variables (SERVER_ENV, DOI_PREFIX,
DATACITE_USERNAME, DATACITE_PASSWORD, ACCOUNTS_API_URL, ...) and optionally a
dotenv or YAML file given with --config. Environment variables win.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "dotenv or YAML config file")
	root.PersistentFlags().StringP("output", "o", "table", "output format: table, json or yaml")
	_ = c.v.BindPFlag("output", root.PersistentFlags().Lookup("output"))

	root.AddCommand(c.serveCmd())
	root.AddCommand(c.configCmd())
	root.AddCommand(c.doiCmd())
	return root
}

// loadConfig reads and fully validates the configuration.
func (c *cli) loadConfig() (*config.Config, error) {
	return config.Load(c.v, c.configFile)
}

// loadDataCiteConfig reads the configuration, validating only what the
// DataCite client needs.
func (c *cli) loadDataCiteConfig() (*config.Config, error) {
	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
		if err := c.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", c.configFile, err)
		}
	}
	cfg, err := config.FromViper(c.v)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateDataCite(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDataCiteClient(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (*datacite.Client, error) {
	return datacite.New(datacite.Config{
		Testing:  cfg.DataCiteTesting,
		BaseURL:  cfg.DataCiteURL,
		Prefix:   cfg.DOIPrefix,
		Username: cfg.DataCiteUsername,
		Password: cfg.DataCitePassword,
		Logger:   log,
		Metrics:  m,
	})
}

func (c *cli) configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate configuration, then print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), c.v.GetString("output"), cfg.Redacted())
		},
	})
	return cfgCmd
}
