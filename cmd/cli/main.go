package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zolsal/price-service/config"
	"github.com/zolsal/price-service/internal/database"
	"github.com/zolsal/price-service/internal/fetch"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "price-service",
	Short: "Price Service CLI - supermarket transparency feed tool",
	Long: `A CLI tool for ingesting, discovering, and parsing the price
transparency feeds published by Israeli supermarket chains. Supports
Shufersal and Victory.`,
	PersistentPreRunE: persistentPreRun,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		// Config is optional for some commands, don't fail here
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// persistentPreRun runs before each command and initializes dependencies
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	logger = initLogger()

	// Only ingest persists anything; discover and parse stay offline of
	// the database.
	if cmd.Name() == "ingest" {
		if cfg == nil {
			return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
		}
		if err := initDatabase(); err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		logger.Info().Msg("Database connected")
	}

	return nil
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// Console format by default for CLI use
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stdout
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: noColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

func initDatabase() error {
	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}

	ctx := context.Background()
	if err := database.Connect(ctx, database.Options{
		ConnString:   dbURL,
		MaxConns:     cfg.Database.MaxConnections,
		MinConns:     cfg.Database.MinConnections,
		MaxLifetime:  cfg.Database.MaxConnLifetime,
		MaxIdleTime:  cfg.Database.MaxConnIdleTime,
		SingleConn:   cfg.Database.UseOracle,
		SessionSetup: cfg.Database.UseOracle,
	}); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

// newFetcher builds the shared HTTP client from config, falling back to
// defaults when no config file was found.
func newFetcher() *fetch.Client {
	fc := fetch.DefaultConfig()
	if cfg != nil {
		rl := cfg.RateLimit
		if rl.FetchPerSecond > 0 {
			fc.RequestsPerSecond = rl.FetchPerSecond
		}
		if rl.FetchBurst > 0 {
			fc.Burst = rl.FetchBurst
		}
		fc.MaxRetries = rl.MaxRetries
		if rl.InitialBackoffMs > 0 {
			fc.InitialBackoff = time.Duration(rl.InitialBackoffMs) * time.Millisecond
		}
		if rl.MaxBackoffMs > 0 {
			fc.MaxBackoff = time.Duration(rl.MaxBackoffMs) * time.Millisecond
		}
	}
	return fetch.NewClient(fc)
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
