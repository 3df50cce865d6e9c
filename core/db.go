package core

import (
	"database/sql"
	"io/fs"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLiteOptions are the connection-string knobs the server cares about.
type SQLiteOptions struct {
	// Mode can be ro | rw | rwc | memory.
	Mode string
	// Cache can be shared | private.
	Cache string
	// JournalMode can be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF.
	JournalMode string
}

func (o *SQLiteOptions) appendDSN(sb *strings.Builder) {
	if o == nil {
		return
	}
	if o.Mode != "" {
		sb.WriteString("?mode=")
		sb.WriteString(o.Mode)
	}
	if o.Cache != "" {
		sb.WriteString("&cache=")
		sb.WriteString(o.Cache)
	}
	if o.JournalMode != "" {
		sb.WriteString("&_journal_mode=")
		sb.WriteString(o.JournalMode)
	}
}

// SQLiteDB wraps the database handle together with its migration source.
type SQLiteDB struct {
	*sql.DB
	file         string
	migrationDir string
	options      *SQLiteOptions
}

func NewSQLiteDB(file, migrationDir string, options *SQLiteOptions) (*SQLiteDB, error) {
	db := &SQLiteDB{file: file, migrationDir: migrationDir, options: options}

	var dsn strings.Builder
	dsn.WriteString("file:")
	dsn.WriteString(file)
	db.options.appendDSN(&dsn)

	d, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, err
	}
	db.DB = d
	return db, nil
}

func (db *SQLiteDB) Migrate() error {
	return MigrateUp(db.DB, os.DirFS(db.migrationDir))
}

// MigrateUp applies all pending goose migrations from fsys. Tests use it
// directly against in-memory databases.
func MigrateUp(db *sql.DB, fsys fs.FS) error {
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
