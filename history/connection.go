// Package history stores one row per finished generation request in a
// local SQLite database so past outputs can be listed again.
package history

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	// pure Go driver, registers "sqlite"
	_ "modernc.org/sqlite"
)

// Options tune the SQLite handle.
type Options struct {
	Path string

	// BusyTimeoutMS is how long a writer waits on a locked database
	BusyTimeoutMS int

	// MaxOpenConns caps the pool; SQLite allows one writer at a time
	MaxOpenConns int

	// Synchronous is the synchronous pragma value, empty keeps the default
	Synchronous string
}

// DefaultOptions returns WAL settings for path.
func DefaultOptions(path string) Options {
	return Options{
		Path:          path,
		BusyTimeoutMS: 5000,
		MaxOpenConns:  1,
		Synchronous:   "NORMAL",
	}
}

// dsn builds a modernc DSN. Pragmas in the DSN are applied to every new
// connection the pool opens, not only the first one.
func (o Options) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.BusyTimeoutMS))
	if o.Synchronous != "" {
		q.Add("_pragma", fmt.Sprintf("synchronous(%s)", o.Synchronous))
	}
	return "file:" + o.Path + "?" + q.Encode()
}

// openSQLite opens and verifies a WAL-mode handle.
func openSQLite(opts Options) (*sql.DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", opts.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", opts.Path, err)
	}
	if !strings.EqualFold(mode, "wal") {
		db.Close()
		return nil, fmt.Errorf("%s: journal mode is %s, want wal", opts.Path, mode)
	}
	return db, nil
}
