package relato

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	relatolib "github.com/soundprediction/relato"
	"github.com/soundprediction/relato/pkg/audit"
	"github.com/soundprediction/relato/pkg/config"
	"github.com/soundprediction/relato/pkg/logger"
	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

var (
	cfgFile  string
	auditLog *audit.ParquetHandler
	rootCmd  = &cobra.Command{
		Use:   "relato",
		Short: "Relato: identity resolution and temporal fact ledger",
		Long: `Relato deduplicates people and organizations behind canonical keys,
maintains an append-only ledger of time-bounded facts with conflict
resolution, and derives relationship strength scores from interaction
history.

Complete documentation is available at https://github.com/soundprediction/relato`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if auditLog != nil {
				if err := auditLog.Flush(); err != nil {
					fmt.Fprintln(os.Stderr, "failed to flush audit log:", err)
				}
			}
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.relato.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "store backend (memory, postgres, neo4j)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("store.type", rootCmd.PersistentFlags().Lookup("store"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".relato")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds a client from the loaded configuration. The caller
// owns Close.
func newClient() (*relatolib.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	// Error-level records are mirrored into parquet files under the audit
	// directory, alongside the ledger exports.
	base := logger.NewHandler(os.Stderr, logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	auditLog, err = audit.NewParquetHandler(base, cfg.Audit.ParquetPath)
	if err != nil {
		return nil, nil, err
	}
	log := slog.New(auditLog)

	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	strategies := make(map[string]types.Strategy, len(cfg.Conflict.Strategies))
	for factType, name := range cfg.Conflict.Strategies {
		strategies[factType] = types.Strategy(name)
	}

	client, err := relatolib.NewClient(st, &relatolib.Config{
		PersonThreshold:       cfg.Dedupe.PersonThreshold,
		OrganizationThreshold: cfg.Dedupe.OrganizationThreshold,
		DefaultStrategy:       types.Strategy(cfg.Conflict.DefaultStrategy),
		Strategies:            strategies,
	}, log)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return client, cfg, nil
}
