package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/okian/delaycast/internal/domain/ratestore"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

func openSQLite(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single writer; the offline pipeline is the only one
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// SaveRatesSQLite replaces the rate table stored at path with data.
func SaveRatesSQLite(ctx context.Context, path string, data ratestore.Data) (err error) {
	conn, err := openSQLite(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, conn.Close()) }()

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{"DELETE FROM rate_meta", "DELETE FROM rate_groups"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear rate table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rate_meta (version, global_mean, global_count) VALUES (?, ?, ?)`,
		data.Version, data.GlobalMean, data.GlobalCount,
	); err != nil {
		return fmt.Errorf("insert rate meta: %w", err)
	}

	ins, err := tx.PrepareContext(ctx,
		`INSERT INTO rate_groups (grouping, key, rate, sample_count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for g, entries := range data.Groups {
		name := g.String()
		for key, e := range entries {
			if _, err := ins.ExecContext(ctx, name, key, e.Rate, e.SampleCount); err != nil {
				return fmt.Errorf("insert %s %q: %w", name, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadRatesSQLite reads the rate table stored at path.
func LoadRatesSQLite(ctx context.Context, path string) (data ratestore.Data, err error) {
	conn, err := openSQLite(path)
	if err != nil {
		return ratestore.Data{}, err
	}
	defer func() { err = errors.Join(err, conn.Close()) }()

	err = conn.QueryRowContext(ctx,
		`SELECT version, global_mean, global_count FROM rate_meta LIMIT 1`,
	).Scan(&data.Version, &data.GlobalMean, &data.GlobalCount)
	if errors.Is(err, sql.ErrNoRows) {
		return ratestore.Data{}, fmt.Errorf("%w: %s has no rate_meta row", ErrCorrupt, path)
	}
	if err != nil {
		return ratestore.Data{}, fmt.Errorf("%w: read rate meta: %w", ErrCorrupt, err)
	}

	rows, err := conn.QueryContext(ctx, `SELECT grouping, key, rate, sample_count FROM rate_groups`)
	if err != nil {
		return ratestore.Data{}, fmt.Errorf("%w: read rate groups: %w", ErrCorrupt, err)
	}
	defer rows.Close()

	data.Groups = make(map[ratestore.Grouping]map[string]ratestore.Entry)
	for rows.Next() {
		var (
			name, key string
			e         ratestore.Entry
		)
		if err := rows.Scan(&name, &key, &e.Rate, &e.SampleCount); err != nil {
			return ratestore.Data{}, fmt.Errorf("%w: scan rate row: %w", ErrCorrupt, err)
		}
		g, err := ratestore.ParseGrouping(name)
		if err != nil {
			return ratestore.Data{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if data.Groups[g] == nil {
			data.Groups[g] = make(map[string]ratestore.Entry)
		}
		data.Groups[g][key] = e
	}
	if err := rows.Err(); err != nil {
		return ratestore.Data{}, fmt.Errorf("%w: iterate rate rows: %w", ErrCorrupt, err)
	}
	return data, nil
}
