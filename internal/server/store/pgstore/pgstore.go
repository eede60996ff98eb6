// Package pgstore is the PostgreSQL identity store. Domains are rows of
// identity_domains; every attribute of every item is one row of
// identity_attributes keyed by (domain, item, name).
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/gophtvm/internal/dbx"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// seams for tests
var (
	openDB         = sql.Open
	gooseUpContext = goose.UpContext
)

// Store implements store.Store on PostgreSQL. Every read is consistent.
type Store struct {
	db       *sql.DB
	pageSize int
}

// New opens dsn with the pgx driver and applies migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	s := NewWithDB(db)
	if err := s.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an open handle without running migrations.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, pageSize: store.DefaultPageSize}
}

// RunMigrations applies the embedded goose migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, "migrations")
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateDomain(ctx context.Context, name string) error {
	query :=
		`INSERT INTO identity_domains (name)
		 VALUES ($1)
		 ON CONFLICT (name) DO NOTHING
		 `
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) ListDomains(ctx context.Context, nextToken string) ([]string, string, error) {
	query :=
		`SELECT name FROM identity_domains
		 WHERE name > $1
		 ORDER BY name
		 LIMIT $2
		 `
	names, err := dbx.QueryStrings(ctx, s.db, query, nextToken, s.pageSize+1)
	if err != nil {
		return nil, "", fmt.Errorf("db error: %w", err)
	}
	names, next := s.trim(names)
	return names, next, nil
}

func (s *Store) PutAttributes(ctx context.Context, domain, item string, attrs store.Attributes, replace bool) error {
	query :=
		`INSERT INTO identity_attributes (domain, item, name, value)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (domain, item, name) DO NOTHING
		 `
	if replace {
		query =
			`INSERT INTO identity_attributes (domain, item, name, value)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (domain, item, name) DO UPDATE SET value = EXCLUDED.value
			 `
	}

	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	slices.Sort(names)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, query, domain, item, name, attrs[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) GetAttributes(ctx context.Context, domain, item string, _ bool) (store.Attributes, error) {
	query :=
		`SELECT name, value FROM identity_attributes
		 WHERE domain = $1 AND item = $2
		 `
	rows, err := s.db.QueryContext(ctx, query, domain, item)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	attrs := store.Attributes{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		attrs[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return attrs, nil
}

func (s *Store) DeleteAttributes(ctx context.Context, domain, item string) error {
	query :=
		`DELETE FROM identity_attributes
		 WHERE domain = $1 AND item = $2
		 `
	if _, err := s.db.ExecContext(ctx, query, domain, item); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Select pages through item names in order, then loads the attributes of
// the page's items in one range query.
func (s *Store) Select(ctx context.Context, domain string, filter store.Filter, nextToken string) (*store.Page, error) {
	var (
		names []string
		err   error
	)
	if filter.Attribute == "" {
		query :=
			`SELECT DISTINCT item FROM identity_attributes
			 WHERE domain = $1 AND item > $2
			 ORDER BY item
			 LIMIT $3
			 `
		names, err = dbx.QueryStrings(ctx, s.db, query, domain, nextToken, s.pageSize+1)
	} else {
		query :=
			`SELECT item FROM identity_attributes
			 WHERE domain = $1 AND item > $2 AND name = $3 AND value = $4
			 ORDER BY item
			 LIMIT $5
			 `
		names, err = dbx.QueryStrings(ctx, s.db, query, domain, nextToken, filter.Attribute, filter.Value, s.pageSize+1)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	names, next := s.trim(names)
	page := &store.Page{Items: make([]store.Item, 0, len(names)), NextToken: next}
	if len(names) == 0 {
		return page, nil
	}

	query :=
		`SELECT item, name, value FROM identity_attributes
		 WHERE domain = $1 AND item >= $2 AND item <= $3
		 ORDER BY item, name
		 `
	rows, err := s.db.QueryContext(ctx, query, domain, names[0], names[len(names)-1])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	byItem := make(map[string]store.Attributes, len(names))
	for _, n := range names {
		byItem[n] = store.Attributes{}
	}
	for rows.Next() {
		var item, name, value string
		if err := rows.Scan(&item, &name, &value); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if attrs, ok := byItem[item]; ok {
			attrs[name] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	for _, n := range names {
		page.Items = append(page.Items, store.Item{Name: n, Attributes: byItem[n]})
	}
	return page, nil
}

// trim cuts a LIMIT pageSize+1 result down to one page and derives the
// continuation token.
func (s *Store) trim(names []string) ([]string, string) {
	if len(names) <= s.pageSize {
		return names, ""
	}
	names = names[:s.pageSize]
	return names, names[len(names)-1]
}
