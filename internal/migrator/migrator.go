// Package migrator applies plain SQL migration files through a query client.
//
// Files named *.sql are applied in lexical order. Each file runs in its own
// transaction together with its bookkeeping row, so a failed file leaves no
// trace. Runs are serialised across processes with an advisory lock.
// Files holding several statements need a driver that accepts them in a
// single Exec (mysql requires multiStatements=true).
package migrator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/AbdelilahOu/dbroute/internal/database"
	"github.com/AbdelilahOu/dbroute/internal/logger"
)

const (
	LockKey   = "dbroute_migrations"
	TableName = "schema_migrations"
)

// ErrLocked is returned when another process holds the migration lock.
const ErrLocked = errors.ConstError("migrations are locked by another process")

type Migration struct {
	Name string
	SQL  string
}

type Status struct {
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
	Batch   int    `json:"batch,omitempty"`
}

type Migrator struct {
	client *database.QueryClient
	source fs.FS
	logger *logger.Logger
	clock  clock.Clock
}

// New reads migrations from source. client must be able to write.
func New(client *database.QueryClient, source fs.FS, log *logger.Logger) *Migrator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Migrator{
		client: client,
		source: source,
		logger: log,
		clock:  clock.WallClock,
	}
}

// FromDir reads migrations from a directory on disk.
func FromDir(client *database.QueryClient, dir string, log *logger.Logger) (*Migrator, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: migrations directory %q does not exist", database.ErrMissingResource, dir)
		}
		return nil, errors.Annotatef(err, "stat migrations directory %q", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", database.ErrMissingResource, dir)
	}
	return New(client, os.DirFS(dir), log), nil
}

// Load returns every migration file in apply order.
func (m *Migrator) Load() ([]Migration, error) {
	names, err := fs.Glob(m.source, "*.sql")
	if err != nil {
		return nil, errors.Trace(err)
	}
	slices.Sort(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(m.source, name)
		if err != nil {
			return nil, errors.Annotatef(err, "read migration %q", name)
		}
		migrations = append(migrations, Migration{Name: path.Base(name), SQL: string(body)})
	}
	return migrations, nil
}

// Up applies pending migrations as one batch and returns their names.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	migrations, err := m.Load()
	if err != nil {
		return nil, err
	}

	release, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	batch := 1
	for _, b := range applied {
		batch = max(batch, b+1)
	}

	var done []string
	for _, migration := range migrations {
		if _, ok := applied[migration.Name]; ok {
			continue
		}
		if err := m.apply(ctx, migration, batch); err != nil {
			return done, err
		}
		done = append(done, migration.Name)
	}

	m.logger.Info("migrations applied", map[string]interface{}{
		"connection": m.client.ConnectionName(),
		"batch":      batch,
		"count":      len(done),
	})
	return done, nil
}

// Status lists every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	migrations, err := m.Load()
	if err != nil {
		return nil, err
	}
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(migrations))
	for _, migration := range migrations {
		batch, ok := applied[migration.Name]
		out = append(out, Status{Name: migration.Name, Applied: ok, Batch: batch})
	}
	return out, nil
}

func (m *Migrator) lock(ctx context.Context) (func(), error) {
	ok, err := m.client.GetAdvisoryLock(ctx, LockKey)
	if err != nil {
		return nil, errors.Annotate(err, "acquire migration lock")
	}
	if !ok {
		return nil, errors.Trace(ErrLocked)
	}
	return func() {
		if _, err := m.client.ReleaseAdvisoryLock(context.Background(), LockKey); err != nil {
			m.logger.Error("release migration lock", err)
		}
	}, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	d := m.client.Dialect()
	stmt := "CREATE TABLE IF NOT EXISTS " + d.Quote(TableName) + " (" +
		d.Quote("name") + " VARCHAR(255) NOT NULL PRIMARY KEY, " +
		d.Quote("batch") + " INTEGER NOT NULL, " +
		d.Quote("migration_time") + " TIMESTAMP NOT NULL)"
	_, err := m.client.RawQuery(stmt).Exec(ctx)
	return errors.Annotate(err, "create migrations table")
}

// applied maps migration names to their batch.
func (m *Migrator) applied(ctx context.Context) (map[string]int, error) {
	rows, err := m.client.Query(TableName).Select("name", "batch").All(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "read applied migrations")
	}

	out := make(map[string]int, len(rows))
	for _, row := range rows {
		name := fmt.Sprint(row["name"])
		batch, err := toInt(row["batch"])
		if err != nil {
			return nil, errors.Annotatef(err, "migration %q", name)
		}
		out[name] = batch
	}
	return out, nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration, batch int) error {
	err := m.client.WithTransaction(ctx, func(tx *database.TransactionClient) error {
		if _, err := tx.RawQuery(migration.SQL).Exec(ctx); err != nil {
			return err
		}
		insert, err := tx.InsertQuery(TableName)
		if err != nil {
			return err
		}
		_, err = insert.Values(map[string]any{
			"name":           migration.Name,
			"batch":          batch,
			"migration_time": m.clock.Now().UTC(),
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Annotatef(err, "apply migration %q", migration.Name)
	}
	m.logger.Debug("migration applied", map[string]interface{}{
		"migration": migration.Name,
		"batch":     batch,
	})
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case string:
		var out int
		_, err := fmt.Sscan(n, &out)
		return out, err
	}
	return 0, fmt.Errorf("unexpected batch value %v (%T)", v, v)
}
