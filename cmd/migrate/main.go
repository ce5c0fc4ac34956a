package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/erp/stockledger/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

// command is one CLI verb. Commands with a run func need a migrator; the
// others only touch the migrations tree.
type command struct {
	minArgs int
	usage   string
	offline func(env *cliEnv, args []string) error
	run     func(m *migration.Migrator, args []string) error
}

type cliEnv struct {
	log  *zap.Logger
	path string // empty selects the embedded migrations
}

func (e *cliEnv) source() fs.FS {
	if e.path == "" {
		return migrations.FS
	}
	return os.DirFS(e.path)
}

var commands = map[string]command{
	"up": {run: func(m *migration.Migrator, _ []string) error { return m.Up() }},
	"down": {run: func(m *migration.Migrator, _ []string) error { return m.Down() }},
	"step": {minArgs: 1, usage: "migrate step <n>", run: func(m *migration.Migrator, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}},
	"goto": {minArgs: 1, usage: "migrate goto <version>", run: func(m *migration.Migrator, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(version))
	}},
	"force": {minArgs: 1, usage: "migrate force <version>", run: func(m *migration.Migrator, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(version)
	}},
	"status": {run: printStatus},
	"version": {run: printStatus},
	"list": {offline: listMigrations},
	"create": {minArgs: 1, usage: "migrate create <name> [description]", offline: createMigration},
}

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (default: the migrations built into the binary)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	name, rest := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if len(rest) < cmd.minArgs {
		log.Fatal("Missing argument", zap.String("usage", cmd.usage))
	}

	env := &cliEnv{log: log}
	if migrationsPath != "" {
		if env.path, err = filepath.Abs(migrationsPath); err != nil {
			log.Fatal("Failed to resolve migrations path", zap.Error(err))
		}
	}
	log.Info("Migration CLI started",
		zap.String("command", name),
		zap.String("source", env.describe()),
	)

	if cmd.offline != nil {
		if err := cmd.offline(env, rest); err != nil {
			log.Fatal("Command failed", zap.String("command", name), zap.Error(err))
		}
		return
	}

	if err := withMigrator(env, func(m *migration.Migrator) error { return cmd.run(m, rest) }); err != nil {
		log.Fatal("Command failed", zap.String("command", name), zap.Error(err))
	}
}

func (e *cliEnv) describe() string {
	if e.path == "" {
		return "embedded"
	}
	return e.path
}

// withMigrator opens the configured PostgreSQL database and runs fn against it
func withMigrator(env *cliEnv, fn func(m *migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations target PostgreSQL, configured driver is %q; SQLite schemas are created from the models at startup", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, env.path, env.log)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func printStatus(m *migration.Migrator, _ []string) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	if !status.Applied {
		fmt.Println("no migrations applied")
		return nil
	}
	dirty := ""
	if status.Dirty {
		dirty = " (dirty)"
	}
	fmt.Printf("version %06d%s\n", status.Version, dirty)
	return nil
}

func listMigrations(env *cliEnv, _ []string) error {
	entries, err := migration.ListMigrations(env.source())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no migrations found")
		return nil
	}
	for _, e := range entries {
		down := ""
		if !e.HasDown {
			down = " (no down migration)"
		}
		fmt.Printf("  %06d %s%s\n", e.Version, e.Name, down)
	}
	return nil
}

// createMigration writes into -path, or ./migrations when the embedded
// tree is selected
func createMigration(env *cliEnv, args []string) error {
	dir := env.path
	if dir == "" {
		dir = defaultMigrationsPath
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}

	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		return err
	}
	env.log.Info("Migration created",
		zap.Uint("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func printUsage() {
	fmt.Println(`Stock ledger schema migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version | status      Show current migration version
  force <version>       Force set migration version (use with caution)
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Migrations directory (default: built into the binary)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  STOCKLEDGER_DATABASE_HOST, STOCKLEDGER_DATABASE_PORT, STOCKLEDGER_DATABASE_USER,
  STOCKLEDGER_DATABASE_PASSWORD, STOCKLEDGER_DATABASE_DBNAME, STOCKLEDGER_DATABASE_SSLMODE

Examples:
  migrate up
  migrate step -1
  migrate -path ./migrations create add_variant_expiry "Track lot expiry dates"
  migrate version`)
}
