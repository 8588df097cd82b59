// Package store persists model-call events, users, courses and conversation
// history in SQLite through ent's SQL dialect.
//
// Tables are declared in tables.go as ent schema tables and created by ent's
// migrator. Repositories query them with the ent SQL builder rather than a
// generated ent.Client, so the layout lives in one file and no codegen step
// is needed to build the module.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// pragmas are set on every pooled connection through the DSN.
var pragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// Store is the SQLite database behind the call log, the local user mirror,
// courses and chat history.
type Store struct {
	db  *sql.DB
	drv *entsql.Driver
	seq *sequenceCounter
}

// Open connects to the SQLite database at path, creating tables that do
// not exist yet.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	drv := entsql.OpenDB(dialect.SQLite, db)

	s := &Store{db: db, drv: drv}
	if err := s.init(context.Background()); err != nil {
		drv.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := migrate(ctx, s.drv); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	seq, err := newSequenceCounter(s.db)
	if err != nil {
		return err
	}
	s.seq = seq
	return nil
}

// DB exposes the handle for ad hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.drv.Close() }

func (s *Store) EventRepo() EventRepo { return &eventRepo{db: s.db, seq: s.seq} }

func (s *Store) UserRepo() UserRepo { return &userRepo{db: s.db} }

func (s *Store) CourseRepo() CourseRepo { return &courseRepo{db: s.db} }

func (s *Store) ConversationRepo() ConversationRepo {
	return &conversationRepo{db: s.db, seq: s.seq}
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

// dsn appends the pragma parameters to path unless the caller already
// chose its own.
func dsn(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	q := url.Values{"_pragma": pragmas}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// DefaultDBPath is COURSEPILOT_DB when set, otherwise coursepilot.db under
// the XDG data directory. The parent directory is created.
func DefaultDBPath() (string, error) {
	p := os.Getenv("COURSEPILOT_DB")
	if p == "" {
		base := os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home dir: %w", err)
			}
			base = filepath.Join(home, ".local", "share")
		}
		p = filepath.Join(base, "coursepilot", "coursepilot.db")
	}
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
