package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kambio/backend/internal/infrastructure/config"
	"github.com/kambio/backend/internal/infrastructure/logger"
	"github.com/kambio/backend/internal/infrastructure/migration"
)

const defaultMigrationsDir = "migrations"

func main() {
	var (
		pathFlag string
		logLevel string
	)
	flag.StringVar(&pathFlag, "path", "", "Path to migrations directory (default: ./migrations)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	migrationsPath, err := resolveMigrationsPath(pathFlag)
	if err != nil {
		log.Fatal("Failed to resolve migrations path", zap.Error(err))
	}

	command, args := args[0], args[1:]
	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("migrations_path", migrationsPath),
	)

	switch command {
	case "create":
		runCreate(log, migrationsPath, args)
	case "list":
		runList(log, migrationsPath)
	default:
		runWithDatabase(log, migrationsPath, command, args)
	}
}

// resolveMigrationsPath picks the migrations directory: the -path flag
// if given, else ./migrations, else the directory two levels above the
// binary (the repo root when running a built binary from bin/).
func resolveMigrationsPath(flagValue string) (string, error) {
	dir := flagValue
	if dir == "" {
		dir = defaultMigrationsDir
		if _, err := os.Stat(dir); err != nil {
			if execPath, execErr := os.Executable(); execErr == nil {
				candidate := filepath.Join(filepath.Dir(execPath), "..", "..", defaultMigrationsDir)
				if _, statErr := os.Stat(candidate); statErr == nil {
					dir = candidate
				}
			}
		}
	}
	return filepath.Abs(dir)
}

func runCreate(log *zap.Logger, migrationsPath string, args []string) {
	if len(args) < 1 {
		log.Fatal("Migration name required. Usage: migrate create <name> [description]")
	}
	name := args[0]
	description := ""
	if len(args) > 1 {
		description = args[1]
	}

	mf, err := migration.CreateMigration(migrationsPath, name, description)
	if err != nil {
		log.Fatal("Failed to create migration", zap.Error(err))
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
}

func runList(log *zap.Logger, migrationsPath string) {
	names, err := migration.ListMigrations(migrationsPath)
	if err != nil {
		log.Fatal("Failed to list migrations", zap.Error(err))
	}
	if len(names) == 0 {
		log.Info("No migrations found")
		return
	}
	log.Info("Available migrations", zap.Int("count", len(names)))
	for _, name := range names {
		fmt.Println("  -", name)
	}
}

func runWithDatabase(log *zap.Logger, migrationsPath, command string, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	m, err := migration.New(db, migrationsPath, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			log.Fatal("Migration up failed", zap.Error(err))
		}
	case "down":
		if err := m.Down(); err != nil {
			log.Fatal("Migration down failed", zap.Error(err))
		}
	case "step":
		n := intArg(log, args, "Step count required. Usage: migrate step <n>")
		if err := m.Steps(n); err != nil {
			log.Fatal("Migration step failed", zap.Error(err))
		}
	case "goto":
		version := intArg(log, args, "Version required. Usage: migrate goto <version>")
		if version < 0 {
			log.Fatal("Version must not be negative", zap.Int("version", version))
		}
		if err := m.GoTo(uint(version)); err != nil {
			log.Fatal("Migration goto failed", zap.Error(err))
		}
	case "version":
		reportVersion(log, m)
	case "force":
		version := intArg(log, args, "Version required. Usage: migrate force <version>")
		log.Warn("Forcing migration version - use with caution")
		if err := m.Force(version); err != nil {
			log.Fatal("Force version failed", zap.Error(err))
		}
	case "drop":
		if !confirmed(args) {
			log.Fatal("Drop cancelled. Use 'migrate drop -confirm' to confirm.")
		}
		if err := m.Drop(); err != nil {
			log.Fatal("Drop failed", zap.Error(err))
		}
	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func intArg(log *zap.Logger, args []string, usage string) int {
	if len(args) < 1 {
		log.Fatal(usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatal("Invalid numeric argument", zap.String("value", args[0]))
	}
	return n
}

func reportVersion(log *zap.Logger, m *migration.Migrator) {
	version, dirty, err := m.Version()
	if err != nil {
		log.Fatal("Failed to get version", zap.Error(err))
	}
	if version == 0 {
		log.Info("No migrations applied")
		return
	}
	log.Info("Current migration version",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
}

func confirmed(args []string) bool {
	for _, arg := range args {
		if arg == "-confirm" || arg == "--confirm" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Println(`Kambio Database Migration Tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version (use with caution)
  drop -confirm         Drop all database objects (DANGEROUS)
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Path to migrations directory (default: ./migrations)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  KAMBIO_DATABASE_HOST, KAMBIO_DATABASE_PORT, KAMBIO_DATABASE_USER,
  KAMBIO_DATABASE_PASSWORD, KAMBIO_DATABASE_DBNAME, KAMBIO_DATABASE_SSLMODE

Examples:
  # Apply all pending migrations
  migrate up

  # Roll back the last migration
  migrate step -1

  # Create a new migration
  migrate create add_wallets_table "Wallet balances per currency"

  # Check current version
  migrate version`)
}
