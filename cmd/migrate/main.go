// Command migrate applies and inspects the custody database schema.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/erp/custody/internal/infrastructure/config"
	"github.com/erp/custody/internal/infrastructure/logger"
	"github.com/erp/custody/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (default: migrations embedded in the binary)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	command := args[0]

	log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// File-only commands never touch the database.
	switch command {
	case "create":
		runCreate(log, migrationsPath, args[1:])
		return
	case "list":
		runList(log, migrationsPath)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to reach database",
			zap.String("host", cfg.Database.Host),
			zap.String("dbname", cfg.Database.DBName),
			zap.Error(err),
		)
	}

	m, err := migration.New(db, migrationsPath, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	if err := run(m, log, command, args[1:]); err != nil {
		log.Error("Migration command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func run(m *migration.Migrator, log *zap.Logger, command string, args []string) error {
	switch command {
	case "up":
		return m.Up()
	case "down":
		if !hasFlag(args, "-confirm") {
			return fmt.Errorf("down drops every custody table; rerun with 'down -confirm'")
		}
		return m.Down()
	case "step":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	case "version":
		state, err := m.State()
		if err != nil {
			return err
		}
		if !state.Applied {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current schema version", zap.Uint("version", state.Version), zap.Bool("dirty", state.Dirty))
		return nil
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(version)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runCreate(log *zap.Logger, dir string, args []string) {
	if len(args) < 1 {
		log.Fatal("Migration name required. Usage: migrate -path migrations create <name> [description]")
	}
	if dir == "" {
		dir = "migrations"
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}

	mf, err := migration.CreateMigration(dir, args[0], description, time.Now())
	if err != nil {
		log.Fatal("Failed to create migration", zap.Error(err))
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
}

func runList(log *zap.Logger, dir string) {
	if dir == "" {
		dir = "migrations"
	}
	names, err := migration.ListMigrations(dir)
	if err != nil {
		log.Fatal("Failed to list migrations", zap.Error(err))
	}
	log.Info("Available migrations", zap.String("path", dir), zap.Int("count", len(names)))
	for _, name := range names {
		fmt.Println("  -", name)
	}
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name || a == "-"+name {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Custody schema migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down -confirm         Roll back every migration
  step <n>              Apply n migrations (negative rolls back)
  version               Show the applied schema version
  force <version>       Mark a version as applied (clears a dirty state)
  create <name> [desc]  Write the next sequential migration pair
  list                  List migrations in -path

Flags:
  -path string          Migrations directory (default: embedded migrations)
  -log-level string     debug, info, warn, error (default: info)

Connection settings come from config.toml, .env or CUSTODY_DATABASE_* variables.
`)
}
