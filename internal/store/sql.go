package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

// dialect holds the statements that differ between SQL engines.
type dialect struct {
	name        string
	driver      string
	createTable string
	insert      string
	// isDuplicate reports whether an insert error is a primary key violation.
	isDuplicate func(error) bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	createTable: `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			current_round INTEGER NOT NULL,
			exchange_count INTEGER NOT NULL,
			task_description TEXT NOT NULL,
			document TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`,
	// DO NOTHING turns a duplicate into zero affected rows.
	insert: `
		INSERT INTO sessions
			(session_id, version, status, current_round, exchange_count, task_description, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`,
	isDuplicate: func(error) bool { return false },
}

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	createTable: `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id VARCHAR(128) NOT NULL PRIMARY KEY,
			version BIGINT NOT NULL,
			status VARCHAR(32) NOT NULL,
			current_round INT NOT NULL,
			exchange_count INT NOT NULL,
			task_description TEXT NOT NULL,
			document LONGTEXT NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			updated_at VARCHAR(40) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin
	`,
	insert: `
		INSERT INTO sessions
			(session_id, version, status, current_round, exchange_count, task_description, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
	isDuplicate: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062 // ER_DUP_ENTRY
	},
}

const (
	selectDocument = `SELECT document FROM sessions WHERE session_id = ?`
	selectVersion  = `SELECT version FROM sessions WHERE session_id = ?`
	selectExists   = `SELECT COUNT(*) FROM sessions WHERE session_id = ?`
	selectSummary  = `
		SELECT session_id, task_description, status, current_round, exchange_count, version, updated_at
		FROM sessions ORDER BY session_id
	`
	updateSession = `
		UPDATE sessions
		SET version = version + 1, status = ?, current_round = ?, exchange_count = ?, document = ?, updated_at = ?
		WHERE session_id = ? AND version = ?
	`
)

// SQLStore keeps one row per session. CompareAndSave is a single
// conditional UPDATE on the version column, so the database's own row
// locking arbitrates between writers.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	opts    options
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path.
//
// The database runs in WAL mode so polling readers never block the writer,
// with a busy timeout so writers from other processes queue instead of
// failing immediately.
func NewSQLiteStore(path string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return newSQLStore(ctx, db, sqliteDialect, opts)
}

// NewMySQLStore connects to MySQL using a go-sql-driver DSN.
func NewMySQLStore(dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(mysqlDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return newSQLStore(ctx, db, mysqlDialect, opts)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, opts []Option) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, d.createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	return &SQLStore{db: db, dialect: d, opts: applyOptions(opts)}, nil
}

// Dialect returns the SQL engine name ("sqlite" or "mysql").
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// Create implements Store.
func (s *SQLStore) Create(ctx context.Context, id, task string) (*session.Session, error) {
	sess, err := session.New(id, task, s.opts.now())
	if err != nil {
		return nil, err
	}
	sess.Version = 1

	doc, err := Encode(sess)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, s.dialect.insert,
		sess.ID, sess.Version, string(sess.Status), sess.CurrentRound, len(sess.Exchanges),
		sess.TaskDescription, string(doc), formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return nil, alreadyExists(id)
		}
		return nil, errors.NewSessionError("insert session", err).WithSessionID(id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, alreadyExists(id)
	}
	return sess, nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, id string) (*session.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, selectDocument, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, errors.NewSessionError("select session", err).WithSessionID(id)
	}
	sess, err := Decode([]byte(doc))
	if err != nil {
		return nil, err
	}
	if sess.ID != id {
		return nil, errors.NewSessionError(
			fmt.Sprintf("row holds session %q", sess.ID), errors.ErrSessionCorrupted,
		).WithSessionID(id)
	}
	return sess, nil
}

// CompareAndSave implements Store.
func (s *SQLStore) CompareAndSave(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if err := checkSave(sess); err != nil {
		return nil, err
	}

	next := nextVersion(sess, s.opts.now())
	doc, err := Encode(next)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, updateSession,
		string(next.Status), next.CurrentRound, len(next.Exchanges), string(doc), formatTime(next.UpdatedAt),
		sess.ID, sess.Version,
	)
	if err != nil {
		return nil, errors.NewSessionError("update session", err).WithSessionID(sess.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.NewSessionError("update session", err).WithSessionID(sess.ID)
	}
	if n == 1 {
		return next, nil
	}

	// Zero rows: either the session is gone or its version moved on.
	var actual int64
	err = s.db.QueryRowContext(ctx, selectVersion, sess.ID).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(sess.ID)
	}
	if err != nil {
		return nil, errors.NewSessionError("select version", err).WithSessionID(sess.ID)
	}
	return nil, errors.NewConflictError(sess.ID, sess.Version, actual)
}

// Exists implements Store.
func (s *SQLStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, selectExists, id).Scan(&n); err != nil {
		return false, errors.NewSessionError("count sessions", err).WithSessionID(id)
	}
	return n > 0, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, selectSummary)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			status    string
			updatedAt string
		)
		if err := rows.Scan(&sum.ID, &sum.TaskDescription, &status, &sum.CurrentRound,
			&sum.ExchangeCount, &sum.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sum.Status = session.Status(status)
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
