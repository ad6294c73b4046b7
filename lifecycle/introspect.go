package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
)

// ColumnInfo describes one column of an introspected table
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	NotNull      bool   `json:"notnull"`
	DefaultValue any    `json:"default_value"`
	PrimaryKey   bool   `json:"pk"`
}

// TableInfo describes one introspected table
type TableInfo struct {
	Name      string       `json:"name"`
	Columns   []ColumnInfo `json:"columns"`
	CreateSQL string       `json:"create_sql"`
}

// IntrospectSchema enumerates the non-system tables of a database file for
// preview. The file is opened read-only and no write lock is taken, so
// introspection can run concurrently with an active session using the same
// file.
func (m *Manager) IntrospectSchema(ctx context.Context, dbPath string) ([]TableInfo, error) {
	exists, err := m.fs.FileExists(dbPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("database file not found: %s", dbPath)
	}

	db, err := sql.Open("sqlite3", readOnlyDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	defer rows.Close()

	tables := make([]TableInfo, 0)
	for rows.Next() {
		var (
			name      string
			createSQL sql.NullString
		)
		if err := rows.Scan(&name, &createSQL); err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		tables = append(tables, TableInfo{Name: name, CreateSQL: createSQL.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	for i := range tables {
		columns, err := m.tableColumns(ctx, db, tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = columns
	}

	return tables, nil
}

// tableColumns reads the column metadata of one table
func (m *Manager) tableColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns := make([]ColumnInfo, 0)
	for rows.Next() {
		var (
			cid          int
			name         string
			declaredType string
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &name, &declaredType, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}

		col := ColumnInfo{
			Name:       name,
			Type:       declaredType,
			NotNull:    notNull != 0,
			PrimaryKey: primaryKey != 0,
		}
		if defaultValue.Valid {
			col.DefaultValue = defaultValue.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	return columns, nil
}

// readOnlyDSN builds a URI DSN that opens the file in read-only mode
func readOnlyDSN(dbPath string) string {
	return fmt.Sprintf("file:%s?mode=ro", dbPath)
}
