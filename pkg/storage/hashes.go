package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// HashDirectoryStats summarizes the stored hash directory.
type HashDirectoryStats struct {
	Hashes    int       `json:"hashes"`
	Games     int       `json:"games"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DirectoryChanges counts what a SaveHashDirectory call changed.
type DirectoryChanges struct {
	Added   int
	Updated int
	Removed int
}

// SaveHashDirectory replaces the stored directory with hashes. Rows missing
// from hashes are swept.
func (d *DB) SaveHashDirectory(ctx context.Context, hashes map[string]int) error {
	_, err := d.ReplaceHashDirectory(ctx, hashes)
	return err
}

// ReplaceHashDirectory is SaveHashDirectory that also reports the changes.
func (d *DB) ReplaceHashDirectory(ctx context.Context, hashes map[string]int) (changes DirectoryChanges, err error) {
	runID := time.Now().UnixNano()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return changes, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing := make(map[string]int)
	rows, err := tx.QueryContext(ctx, "SELECT hash, game_id FROM hash_directory")
	if err != nil {
		return changes, err
	}
	for rows.Next() {
		var (
			h  string
			id int
		)
		if err = rows.Scan(&h, &id); err != nil {
			rows.Close()
			return changes, err
		}
		existing[h] = id
	}
	if err = rows.Close(); err != nil {
		return changes, err
	}

	normalized := make(map[string]int, len(hashes))
	for hash, gameID := range hashes {
		normalized[strings.ToLower(hash)] = gameID
	}

	for hash, gameID := range normalized {
		old, existed := existing[hash]
		switch {
		case !existed:
			_, err = tx.ExecContext(ctx, `INSERT INTO hash_directory(hash, game_id, run_id, first_seen_at, last_seen_at) VALUES(?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`, hash, gameID, runID)
			changes.Added++
		case old != gameID:
			_, err = tx.ExecContext(ctx, `UPDATE hash_directory SET game_id = ?, run_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE hash = ?`, gameID, runID, hash)
			changes.Updated++
		default:
			_, err = tx.ExecContext(ctx, `UPDATE hash_directory SET run_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE hash = ?`, runID, hash)
		}
		if err != nil {
			return changes, err
		}
	}

	// Sweep: anything not touched in this run left the directory.
	res, err := tx.ExecContext(ctx, `DELETE FROM hash_directory WHERE run_id != ?`, runID)
	if err != nil {
		return changes, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return changes, err
	}
	changes.Removed = int(removed)

	if err = tx.Commit(); err != nil {
		return changes, err
	}
	return changes, nil
}

// LoadHashDirectory returns the stored directory.
func (d *DB) LoadHashDirectory(ctx context.Context) (map[string]int, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT hash, game_id FROM hash_directory")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			h  string
			id int
		)
		if err := rows.Scan(&h, &id); err != nil {
			return nil, err
		}
		out[h] = id
	}
	return out, rows.Err()
}

// GetHashDirectoryStats summarizes the stored directory.
func (d *DB) GetHashDirectoryStats(ctx context.Context) (HashDirectoryStats, error) {
	var (
		stats   HashDirectoryStats
		updated sql.NullString
	)
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT game_id), MAX(last_seen_at) FROM hash_directory`).Scan(&stats.Hashes, &stats.Games, &updated)
	if err != nil {
		return stats, err
	}
	if updated.Valid {
		if t, perr := time.Parse("2006-01-02 15:04:05", updated.String); perr == nil {
			stats.UpdatedAt = t
		}
	}
	return stats, nil
}
