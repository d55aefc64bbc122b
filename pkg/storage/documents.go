package storage

import (
	"context"
	"database/sql"
	"errors"
)

const settingsDocument = "settings"

// ReadDocument returns the stored settings document, or nil when none was
// written yet.
func (d *DB) ReadDocument(ctx context.Context) ([]byte, error) {
	var body string
	err := d.sql.QueryRowContext(ctx, "SELECT body FROM settings_documents WHERE name = ?", settingsDocument).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// WriteDocument replaces the stored settings document.
func (d *DB) WriteDocument(ctx context.Context, doc []byte) error {
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO settings_documents(name, body, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP
	`, settingsDocument, string(doc))
	return err
}
