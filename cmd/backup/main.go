package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"teachme/internal/config"
	"teachme/internal/database"
	"teachme/internal/logging"
	"teachme/internal/profilesync"
	"teachme/internal/service"
	"teachme/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "backup",
		Short: "TeachMe database backup tool",
		Long: `Export, import and seed the TeachMe database.

The database is selected with the server's environment variables:
  DATABASE_TYPE    sqlite, postgres, pgx or mysql (default: sqlite)
  DB_PATH          SQLite database path (default: ./teachme.db)
  DATABASE_URL     PostgreSQL or MySQL connection URL`,
		SilenceUsage: true,
	}
	root.AddCommand(newExportCmd(), newImportCmd(), newSeedModulesCmd())
	return root
}

// openDatabase connects with the server configuration and brings the
// schema up to date
func openDatabase(ctx context.Context) (*database.DB, error) {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, true)

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrationsFS(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if output == "" {
				output = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
			}
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			log.Info().Str("path", output).Msg("Exporting database")
			if err := service.NewBackupService(db).Export(ctx, output); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if info, err := os.Stat(output); err == nil {
				log.Info().Float64("size_mb", float64(info.Size())/1024/1024).Msg("Export complete")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		input     string
		clearData bool
		yes       bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON backup into the database",
		Example: `  backup import --input backup.json
  backup import --input backup.json --clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input file %s: %w", input, err)
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			backups := service.NewBackupService(db)

			if clearData {
				if !yes && !confirm(cmd, "WARNING: This will delete all existing data. Type 'yes' to confirm: ") {
					log.Info().Msg("Import cancelled")
					return nil
				}
				log.Info().Msg("Clearing existing data")
				if err := backups.Clear(ctx); err != nil {
					return err
				}
			}

			log.Info().Str("path", input).Msg("Importing database")
			if err := backups.Import(ctx, input); err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			log.Info().Msg("Import complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input file path")
	cmd.Flags().BoolVar(&clearData, "clear", false, "clear existing data before import (destructive)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newSeedModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-modules <catalogue.json>",
		Short: "Load a module catalogue, replacing modules with the same IDs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			learning := service.NewLearningService(db, profilesync.New(db, profilesync.NewBroker(), nil))
			n, err := learning.SeedModules(ctx, f)
			if err != nil {
				return err
			}
			log.Info().Int("modules", n).Str("path", args[0]).Msg("Seed complete")
			return nil
		},
	}
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}
