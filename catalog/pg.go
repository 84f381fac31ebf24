package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tundra/commit"
	"tundra/storage"
	"tundra/table"
)

const catalogDDL = `
CREATE TABLE IF NOT EXISTS tables (
	name TEXT PRIMARY KEY,
	metadata_location TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGCatalog keeps the current-metadata pointer in Postgres instead of
// deriving it from version-numbered file names. Metadata documents still
// live in the object store as immutable uniquely-named objects; only the
// pointer row is mutable, and a conditional UPDATE is the compare-and-swap.
type PGCatalog struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*PGCatalog, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.HealthCheckPeriod = time.Second * 5
	config.MaxConnLifetime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to catalog: %w", err)
	}

	if _, err := pool.Exec(ctx, catalogDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing catalog schema: %w", err)
	}
	return &PGCatalog{pool: pool}, nil
}

func (c *PGCatalog) Close() {
	c.pool.Close()
}

// Pointer returns the commit pointer for one named table. Store and
// location say where its metadata objects are written.
func (c *PGCatalog) Pointer(name string, store storage.Storage, location string) *PGPointer {
	return &PGPointer{catalog: c, name: name, store: store, location: location}
}

// Drop removes a table's pointer row. Its objects stay in the store for
// orphan cleanup.
func (c *PGCatalog) Drop(ctx context.Context, name string) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM tables WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("dropping table %s: %w", name, err)
	}
	return nil
}

// List returns the names of all catalogued tables.
func (c *PGCatalog) List(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT name FROM tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PGPointer implements the commit pointer on a catalog row.
type PGPointer struct {
	catalog  *PGCatalog
	name     string
	store    storage.Storage
	location string
}

var _ commit.Pointer = (*PGPointer)(nil)

func (p *PGPointer) Init(ctx context.Context, md *table.Metadata) (commit.Token, error) {
	path, err := p.writeMetadata(ctx, md)
	if err != nil {
		return commit.Token{}, err
	}

	_, err = p.catalog.pool.Exec(ctx,
		`INSERT INTO tables (name, metadata_location) VALUES ($1, $2)`,
		p.name, path)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return commit.Token{}, fmt.Errorf("table %s: %w", p.name, storage.ErrAlreadyExists)
		}
		return commit.Token{}, fmt.Errorf("registering table %s: %w", p.name, err)
	}
	return commit.Token{Version: 1, Path: path}, nil
}

func (p *PGPointer) Load(ctx context.Context) (*table.Metadata, commit.Token, error) {
	var path string
	err := p.catalog.pool.QueryRow(ctx,
		`SELECT metadata_location FROM tables WHERE name = $1`, p.name).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, commit.Token{}, fmt.Errorf("table %s: %w", p.name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, commit.Token{}, fmt.Errorf("loading table %s: %w", p.name, err)
	}

	data, err := storage.ReadAll(ctx, p.store, p.location+"/"+path)
	if err != nil {
		return nil, commit.Token{}, fmt.Errorf("reading metadata of %s: %w", p.name, err)
	}
	md, err := table.ParseMetadata(data)
	if err != nil {
		return nil, commit.Token{}, fmt.Errorf("reading metadata of %s: %w", p.name, err)
	}
	return md, commit.Token{Path: path}, nil
}

func (p *PGPointer) Swap(ctx context.Context, base commit.Token, md *table.Metadata) (commit.Token, error) {
	path, err := p.writeMetadata(ctx, md)
	if err != nil {
		return commit.Token{}, err
	}

	// The metadata object is already written; on failure its path travels
	// back in the token so the committer can report it as an orphan.
	tag, err := p.catalog.pool.Exec(ctx,
		`UPDATE tables SET metadata_location = $1, updated_at = now()
		 WHERE name = $2 AND metadata_location = $3`,
		path, p.name, base.Path)
	if err != nil {
		return commit.Token{Path: path}, fmt.Errorf("swapping pointer of %s: %w", p.name, err)
	}
	if tag.RowsAffected() == 0 {
		return commit.Token{Path: path}, fmt.Errorf("swapping pointer of %s: %w", p.name, commit.ErrStale)
	}
	return commit.Token{Path: path}, nil
}

func (p *PGPointer) writeMetadata(ctx context.Context, md *table.Metadata) (string, error) {
	data, err := md.Marshal()
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	path := fmt.Sprintf("metadata/%s.metadata.json", uuid.New())
	if err := p.store.PutIfAbsent(ctx, p.location+"/"+path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("writing metadata object: %w", err)
	}
	return path, nil
}
