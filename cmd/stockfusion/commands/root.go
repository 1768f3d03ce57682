package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wonny/stockfusion/pkg/config"
)

var (
	// Global flags
	configFile  string
	storageKind string
	presetsFile string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stockfusion",
	Short: "StockFusion - NSE 종목 데이터 융합/스코어링/스크리닝",
	Long: `StockFusion Unified CLI

여러 데이터 소스(NSE, Yahoo, screener.in, Alpha Vantage)를 융합해
종목 레코드를 보강하고, 복합 점수를 계산하고, 스크리너로 조회합니다.

Usage:
  go run ./cmd/stockfusion [command]

Examples:
  go run ./cmd/stockfusion api
  go run ./cmd/stockfusion populate --file data/EQUITY_L.csv
  go run ./cmd/stockfusion enrich --max 50 --workers 4
  go run ./cmd/stockfusion screen --preset value
  go run ./cmd/stockfusion fetch TCS`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file to load before the environment (default .env)")
	rootCmd.PersistentFlags().StringVar(&storageKind, "storage", "", "storage backend override (postgres|memory)")
	rootCmd.PersistentFlags().StringVar(&presetsFile, "presets", "", "screener presets YAML (default: built-in)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig applies the global flags on top of config.Load
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", configFile, err)
		}
	}

	// validated by config.Load (memory needs no DATABASE_URL)
	if storageKind != "" {
		os.Setenv("STORAGE", storageKind)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
