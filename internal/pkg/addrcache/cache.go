// Package addrcache persists the identities of discovered nodes so the
// registry can be repopulated at startup, before the first discovery run
// finishes.
package addrcache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	busyTimeoutMillis = 5000
	pingTimeout       = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	address    TEXT PRIMARY KEY,
	parent     TEXT NOT NULL,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	remote_id  TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
)`

// Cache is a SQLite table of node descriptors keyed by address
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache database at path
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory for %s", path)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMillis)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening address cache %s", path)
	}

	// a single writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connecting to address cache %s", path)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating address cache schema")
	}

	return &Cache{db: db, path: path}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Path() string {
	return c.path
}

// Save inserts or replaces the given descriptors in one transaction
func (c *Cache) Save(ctx context.Context, descs []nodes.Descriptor) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting address cache transaction")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (address, parent, name, kind, remote_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			remote_id = excluded.remote_id,
			updated_at = excluded.updated_at`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "preparing address cache insert")
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, d := range descs {
		remoteID := ""
		if d.Resource != nil {
			remoteID = d.Resource.ID
		}

		if _, err := stmt.ExecContext(ctx, string(d.Address), string(d.Parent), d.Name, d.Kind.String(), remoteID, now); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "saving node %s", d.Address)
		}
	}

	return errors.Wrap(tx.Commit(), "committing address cache")
}

// Load returns every cached descriptor, without resources, ordered by address.
// Rows with a kind this version does not know are skipped.
func (c *Cache) Load(ctx context.Context) ([]nodes.Descriptor, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT address, parent, name, kind FROM nodes ORDER BY address`)
	if err != nil {
		return nil, errors.Wrap(err, "reading address cache")
	}
	defer rows.Close()

	var out []nodes.Descriptor
	for rows.Next() {
		var addr, parent, name, kindName string
		if err := rows.Scan(&addr, &parent, &name, &kindName); err != nil {
			return nil, errors.Wrap(err, "reading address cache row")
		}

		kind, err := nodes.ParseKind(kindName)
		if err != nil {
			logging.Logger(ctx).WithError(err).Warnf("Skipping cached node %s", addr)
			continue
		}

		out = append(out, nodes.Descriptor{
			Address: address.Address(addr),
			Parent:  address.Address(parent),
			Name:    name,
			Kind:    kind,
		})
	}

	return out, errors.Wrap(rows.Err(), "reading address cache")
}
