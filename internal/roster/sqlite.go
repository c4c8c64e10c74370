package roster

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/lightbridge/internal/infrastructure/database"
	"github.com/nerrad567/lightbridge/internal/registry"
)

// SQLiteSource reads the devices table. Rows are re-read on every call, so
// rows inserted while the bridge runs are bound by the next reload.
type SQLiteSource struct {
	db *database.DB
}

// NewSQLiteSource creates a source over a migrated database.
func NewSQLiteSource(db *database.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// Declarations implements Source: enabled rows ordered by position, id.
func (s *SQLiteSource) Declarations(ctx context.Context) ([]registry.Declaration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, local_key, ip, name, version
		FROM devices
		WHERE enabled = 1
		ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("reading devices: %w", err)
	}
	defer rows.Close()

	var decls []registry.Declaration
	for rows.Next() {
		var id, key, ip, name, version string
		if err := rows.Scan(&id, &key, &ip, &name, &version); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		decls = append(decls, declaration(id, key, ip, name, version))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return decls, nil
}

// Import inserts declarations that are not in the table yet, appending them
// after the existing rows. Existing rows are left untouched. It returns the
// number of rows inserted.
func (s *SQLiteSource) Import(ctx context.Context, decls []registry.Declaration) (int, error) {
	inserted := 0
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(position) + 1, 0) FROM devices").Scan(&next); err != nil {
			return fmt.Errorf("reading next position: %w", err)
		}

		for _, d := range decls {
			version := d.Version
			if version == "" {
				version = defaultVersion
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO devices (id, local_key, ip, name, version, position)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO NOTHING
			`, d.ID, d.Key, d.IP, d.Name, version, next)
			if err != nil {
				return fmt.Errorf("inserting device %s: %w", d.ID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 { //nolint:errcheck // sqlite3 always reports
				inserted++
				next++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// SetEnabled enables or disables a device row. Disabling does not unbind a
// resource that is already bound; it only keeps the row out of future
// reloads.
func (s *SQLiteSource) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE devices SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return fmt.Errorf("updating device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return nil
}
