package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/pms/internal/config"
	"github.com/ehr/pms/internal/domain/patient"
	"github.com/ehr/pms/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "pms-server",
		Short:        "Patient Management System API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(storeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres store schema",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", cfg.DBSchema)
			count, err := migrator.Up(cmd.Context(), cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context(), cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, cfg.DBSchema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(cmd *cobra.Command) (*config.Config, *db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if schema, _ := cmd.Flags().GetString("schema"); schema != "" {
		cfg.DBSchema = schema
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL is required for migrations")
	}

	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db.NewEmbeddedMigrator(pool), pool.Close, nil
}

func printMigrationStatus(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and move the patient collection",
	}

	// store verify
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Re-validate every stored record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			problems, total, err := patient.NewService(st.gw, logger).Verify(cmd.Context())
			if err != nil {
				return err
			}
			return reportVerify(cmd, st.driver, problems, total)
		},
	})

	// store copy
	copyCmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the configured collection into another store",
		RunE: func(cmd *cobra.Command, args []string) error {
			toDriver, _ := cmd.Flags().GetString("to-driver")
			toPath, _ := cmd.Flags().GetString("to-path")
			force, _ := cmd.Flags().GetBool("force")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dst, err := targetConfig(cfg, toDriver, toPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			src, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open source store: %w", err)
			}
			defer src.Close()
			to, err := openStore(cmd.Context(), dst, logger)
			if err != nil {
				return fmt.Errorf("open target store: %w", err)
			}
			defer to.Close()

			n, err := copyCollection(cmd.Context(), src.gw, to.gw, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %d record(s) from %s to %s.\n", n, src.driver, to.driver)
			return nil
		},
	}
	copyCmd.Flags().String("to-driver", "", "Target store driver (file, postgres, leveldb, redis)")
	copyCmd.Flags().String("to-path", "", "Target file or leveldb path")
	copyCmd.Flags().Bool("force", false, "Overwrite a non-empty target")
	_ = copyCmd.MarkFlagRequired("to-driver")
	cmd.AddCommand(copyCmd)

	return cmd
}

func reportVerify(cmd *cobra.Command, driver string, problems []patient.Problem, total int) error {
	out := cmd.OutOrStdout()
	for _, p := range problems {
		fmt.Fprintf(out, "%-20s %v\n", p.ID, p.Err)
	}
	fmt.Fprintf(out, "Checked %d record(s) in %s store, %d invalid.\n", total, driver, len(problems))
	if len(problems) > 0 {
		return fmt.Errorf("%d invalid record(s)", len(problems))
	}
	return nil
}

// targetConfig derives the copy target's config from the source config.
// Connection settings other than the path come from the environment.
func targetConfig(src *config.Config, driver, path string) (*config.Config, error) {
	dst := *src
	dst.StoreDriver = driver
	switch driver {
	case config.DriverFile:
		if path != "" {
			dst.StorePath = path
		}
	case config.DriverLevelDB:
		if path != "" {
			dst.LevelDBPath = path
		}
	case config.DriverMemory:
		return nil, errors.New("copying into the memory store would discard the data")
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("target store: %w", err)
	}
	if dst.StoreDriver == src.StoreDriver && dst.StorePath == src.StorePath && dst.LevelDBPath == src.LevelDBPath &&
		dst.DatabaseURL == src.DatabaseURL && dst.RedisURL == src.RedisURL {
		return nil, errors.New("source and target store are the same")
	}
	return &dst, nil
}

// copyCollection writes the whole source collection into dst. A non-empty
// target is refused unless force is set.
func copyCollection(ctx context.Context, src, dst patient.Gateway, force bool) (int, error) {
	c, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load source: %w", err)
	}
	if !force {
		existing, err := dst.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("load target: %w", err)
		}
		if existing.Len() > 0 {
			return 0, fmt.Errorf("target already holds %d record(s), use --force to overwrite", existing.Len())
		}
	}
	if err := dst.Save(ctx, c); err != nil {
		return 0, fmt.Errorf("save target: %w", err)
	}
	return c.Len(), nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open patient store")
		return err
	}
	defer st.Close()

	e := newServer(cfg, st, logger)

	// Graceful shutdown
	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", st.driver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
