package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/storage/gormstore"
	"github.com/vladislavdragonenkov/bulk-oms/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second

	driverPostgres     = "postgres"
	driverSQLite       = "sqlite"
	driverGormPostgres = "gorm-postgres"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fail("%v", err)
	}
}

// run разбирает флаги и применяет миграции. Для postgres используются
// версионированные SQL-миграции, для gorm-бэкендов доступен только up (AutoMigrate).
func run(args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		direction string
		driver    string
		steps     int
		dsn       string
	)
	fs.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	fs.StringVar(&driver, "driver", driverPostgres, "storage driver: postgres|sqlite|gorm-postgres")
	fs.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&dsn, "dsn", "", "DSN or sqlite path (fallback: OMS_POSTGRES_DSN / OMS_SQLITE_PATH)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	driver = strings.ToLower(strings.TrimSpace(driver))
	direction = strings.ToLower(strings.TrimSpace(direction))
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver == driverSQLite {
			dsn = strings.TrimSpace(getenv("OMS_SQLITE_PATH"))
		} else {
			dsn = strings.TrimSpace(getenv("OMS_POSTGRES_DSN"))
		}
	}
	if dsn == "" {
		return fmt.Errorf("dsn for driver %q is required (-dsn, OMS_POSTGRES_DSN or OMS_SQLITE_PATH)", driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	switch driver {
	case driverPostgres:
		return migratePostgres(ctx, dsn, direction, steps, out)
	case driverSQLite, driverGormPostgres:
		return migrateGorm(ctx, driver, dsn, direction, out)
	default:
		return fmt.Errorf("unsupported driver: %s (use postgres|sqlite|gorm-postgres)", driver)
	}
}

func migratePostgres(ctx context.Context, dsn, direction string, steps int, out io.Writer) error {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch direction {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	case "status":
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d pending=%d\n",
		direction, state.Version, state.Applied, state.Pending)
	return err
}

func migrateGorm(ctx context.Context, driver, dsn, direction string, out io.Writer) error {
	if direction != "up" {
		return fmt.Errorf("driver %s supports only -direction=up", driver)
	}

	dialect := gormstore.DialectSQLite
	if driver == driverGormPostgres {
		dialect = gormstore.DialectPostgres
	}

	logger := log.WithField("component", "migrate")
	store, err := gormstore.Open(ctx, dialect, dsn, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", driver, err)
	}
	defer store.Close()

	if err := store.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "migrate up ok: driver=%s schema synchronized\n", driver)
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
