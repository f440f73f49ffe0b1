package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/bootstrap"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/observability"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Administer the face attendance gallery and ledgers",
	Long: `attendctl works directly on the configured gallery and ledger storage.
It enrols and manages identities, exports attendance and leave rows,
runs the reports and takes ledger backups without going through the
daemon's HTTP API.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to config file")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig falls back to defaults plus ATT_* overrides when the config
// file does not exist.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// env bundles the stores a command may need. Close releases whatever was
// opened.
type env struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	gallery *gallery.Gallery
	ledger  *ledger.Ledger
}

func openEnv(ctx context.Context, withLedger bool, opts ...gallery.Option) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}
	if e.pool, err = bootstrap.OpenPool(ctx, cfg); err != nil {
		return nil, err
	}
	if e.gallery, err = bootstrap.OpenGallery(cfg.Gallery, e.pool, opts...); err != nil {
		e.Close()
		return nil, fmt.Errorf("open gallery: %w", err)
	}
	if withLedger {
		if e.ledger, err = bootstrap.OpenLedger(cfg.Ledger, e.pool); err != nil {
			e.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
	}
	return e, nil
}

func (e *env) Close() {
	if e.ledger != nil {
		_ = e.ledger.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}
