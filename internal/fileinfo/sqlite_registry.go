package fileinfo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/grinsted/keeweb/internal/common"
	"github.com/grinsted/keeweb/internal/dbx"
)

// SQLiteRegistry is the persisted Registry implementation, grounded on the
// teacher's sqlite repository shape (dbx.DBTX + transactional writes via
// dbx.WithTx) but keyed by an MRU sequence rather than upsert-by-primary-key
// alone, to satisfy the "insert-at-head" ordering requirement.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry wraps db. Callers must have already run the package's
// migrations against db (see RunMigrations).
func NewSQLiteRegistry(db *sql.DB) *SQLiteRegistry {
	return &SQLiteRegistry{db: db}
}

func (r *SQLiteRegistry) Get(ctx context.Context, id string) (Info, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" from fileinfo where id = ?", id)
	return scanInfo(row)
}

func (r *SQLiteRegistry) GetMatch(ctx context.Context, storage, name, path string) (Info, error) {
	row := r.db.QueryRowContext(ctx,
		selectColumns+" from fileinfo where storage = ? and name = ? and path = ?",
		storage, name, path)
	return scanInfo(row)
}

func (r *SQLiteRegistry) GetByName(ctx context.Context, name string) (Info, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" from fileinfo where name = ? order by seq desc limit 1", name)
	return scanInfo(row)
}

func (r *SQLiteRegistry) Remove(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "delete from fileinfo where id = ?", id)
	if err != nil {
		return fmt.Errorf("fileinfo: remove %s: %w", id, err)
	}
	return nil
}

// Unshift inserts info at the head of the MRU order, replacing any
// existing record with the same id. The head position is
// tracked by a monotonically increasing seq column; a new record (or a
// re-inserted one) always gets the current max+1.
func (r *SQLiteRegistry) Unshift(ctx context.Context, info Info) error {
	optsJSON, err := json.Marshal(info.Opts)
	if err != nil {
		return fmt.Errorf("fileinfo: marshal opts: %w", err)
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var maxSeq int64
		row := tx.QueryRowContext(ctx, "select coalesce(max(seq), 0) from fileinfo")
		if err := row.Scan(&maxSeq); err != nil {
			return fmt.Errorf("fileinfo: read max seq: %w", err)
		}

		_, err := tx.ExecContext(ctx, "delete from fileinfo where id = ?", info.ID)
		if err != nil {
			return fmt.Errorf("fileinfo: delete prior %s: %w", info.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			insert into fileinfo (
				id, seq, name, storage, path, opts, rev, modified, edit_state,
				sync_date, open_date, key_file_name, key_file_hash
			) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			info.ID, maxSeq+1, info.Name, info.Storage, info.Path, string(optsJSON),
			info.Rev, info.Modified, info.EditState,
			info.SyncDate, info.OpenDate,
			info.KeyFileName, info.KeyFileHash,
		)
		if err != nil {
			return fmt.Errorf("fileinfo: insert %s: %w", info.ID, err)
		}
		return nil
	})
}

// Save is a no-op for SQLiteRegistry: every mutation (Unshift, Remove) is
// already durably committed via its own transaction. It exists to satisfy
// the Registry contract for stores that buffer in memory instead.
func (r *SQLiteRegistry) Save(_ context.Context) error { return nil }

// Load returns every record, most-recently-unshifted first.
func (r *SQLiteRegistry) Load(ctx context.Context) ([]Info, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" from fileinfo order by seq desc")
	if err != nil {
		return nil, fmt.Errorf("fileinfo: load: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		info, err := scanInfoRows(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fileinfo: load: %w", err)
	}
	return infos, nil
}

const selectColumns = `select id, name, storage, path, opts, rev, modified, edit_state,
	sync_date, open_date, key_file_name, key_file_hash`

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (Info, error) {
	info, err := scanInfoRows(row)
	if err == sql.ErrNoRows {
		return Info{}, common.ErrNotFound
	}
	return info, err
}

func scanInfoRows(row scanner) (Info, error) {
	var info Info
	var optsJSON string
	var syncDate, openDate sql.NullTime

	err := row.Scan(
		&info.ID, &info.Name, &info.Storage, &info.Path, &optsJSON,
		&info.Rev, &info.Modified, &info.EditState,
		&syncDate, &openDate,
		&info.KeyFileName, &info.KeyFileHash,
	)
	if err != nil {
		return Info{}, err
	}

	if optsJSON != "" {
		if err := json.Unmarshal([]byte(optsJSON), &info.Opts); err != nil {
			return Info{}, fmt.Errorf("fileinfo: unmarshal opts for %s: %w", info.ID, err)
		}
	}
	info.SyncDate = syncDate.Time
	info.OpenDate = openDate.Time
	return info, nil
}
