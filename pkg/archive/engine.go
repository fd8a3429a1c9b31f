package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// sqliteDriverName is the database/sql driver name registered with the
// PARTSCOUNT custom scalar function attached via ConnectHook. Registered
// once regardless of how many shards are opened.
const sqliteDriverName = "docarchive_sqlite3"

var registerDriverOnce sync.Once

func registerDriver() {
	registerDriverOnce.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("PARTSCOUNT", partsCount, true); err != nil {
					return err
				}

				// SQLite's REGEXP operator dispatches to a scalar function
				// named REGEXP(pattern, value), used by FindFilenameMatch.
				return conn.RegisterFunc("REGEXP", regexpMatch, true)
			},
		})
	})
}

// partsCount implements the custom SQL scalar PARTSCOUNT(value, sep),
// returning the count of non-empty parts when splitting value on sep.
// Consecutive separators count as one boundary and leading/trailing
// separators never produce an empty part, because both simply fall out of
// counting only the non-empty pieces of strings.Split.
func partsCount(value, sep string) (int64, error) {
	if sep == "" {
		return 0, errors.New("PARTSCOUNT: separator must not be empty")
	}

	var count int64

	for _, part := range strings.Split(value, sep) {
		if part != "" {
			count++
		}
	}

	return count, nil
}

// regexpMatch implements the scalar backing SQLite's REGEXP operator,
// caching nothing across calls since the go-sqlite3 connection hook runs
// once per connection and FindFilenameMatch's expression varies per call.
func regexpMatch(pattern, value string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}

	return re.MatchString(value), nil
}

// pragmaConfig describes the PRAGMAs the adapter applies to a freshly
// opened connection.
type pragmaConfig struct {
	busyTimeoutMS   int
	cacheSizeKiB    int // negative = KiB of cache, per SQLite convention
	foreignKeys     bool
	maxPageCount    int64
	pageSize        int
	journalMode     string // delete|truncate|persist|memory|wal|off
	readUncommitted bool
	cellSizeCheck   bool
}

// openMode selects the Relational Engine Adapter's three open entry points.
type openMode int

const (
	modeOpenExisting openMode = iota
	modeOpenOrCreate
	modeCreateNew
)

// conn is a single opened handle over one shard database file (or
// ":memory:"), wrapping *sql.DB with the adapter's pragma discipline.
type conn struct {
	db       *sql.DB
	readOnly bool
}

// openConn implements open/open_or_create/create_new with shared-cache,
// no-per-connection-mutex flags (the shard pool does its own locking via
// per-shard mutexes) and read-write vs read-only per readOnly.
func openConn(ctx context.Context, mode openMode, path string, readOnly bool, pragmas pragmaConfig) (*conn, error) {
	registerDriver()

	if path != ":memory:" {
		_, statErr := os.Stat(path)

		switch mode {
		case modeOpenExisting:
			if statErr != nil {
				return nil, newErr(KindEngine, "engine.open", "", fmt.Errorf("database %q does not exist", path))
			}
		case modeCreateNew:
			if statErr == nil {
				return nil, newErr(KindEngine, "engine.create_new", "", fmt.Errorf("database %q already exists", path))
			}
		case modeOpenOrCreate:
			// no precondition
		}
	}

	dsn := buildDSN(path, readOnly)

	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, wrapEngineErr("engine.open", err)
	}

	// Each conn owns exactly one underlying SQLite connection: the shard
	// pool hands out a writer and a reader per shard and serializes access
	// to each with its own lock, so pooling multiple connections per conn
	// would just relocate the serialization point.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, wrapEngineErr("engine.open", err)
	}

	c := &conn{db: db, readOnly: readOnly}

	if err := c.applyPragmas(ctx, pragmas); err != nil {
		_ = db.Close()

		return nil, err
	}

	return c, nil
}

func buildDSN(path string, readOnly bool) string {
	var b strings.Builder

	b.WriteString("file:")

	if path == ":memory:" {
		// "file::memory:?cache=shared" names one database for the whole
		// process; a fresh name per call keeps each in-memory conn separate.
		b.WriteString(NewID())
		b.WriteString("?mode=memory&cache=shared&_mutex=no")

		return b.String()
	}

	b.WriteString(path)
	b.WriteString("?cache=shared&_mutex=no")

	if readOnly {
		b.WriteString("&mode=ro")
	} else {
		b.WriteString("&mode=rwc")
	}

	return b.String()
}

// applyPragmas applies each configured pragma only when the connection's
// current value differs. page_size additionally runs VACUUM after a
// change since SQLite only honors a new page_size at the next VACUUM.
func (c *conn) applyPragmas(ctx context.Context, cfg pragmaConfig) error {
	if cfg.busyTimeoutMS > 0 {
		if err := c.applyIntPragmaIfChanged(ctx, "busy_timeout", int64(cfg.busyTimeoutMS)); err != nil {
			return err
		}
	}

	if cfg.cacheSizeKiB != 0 {
		if err := c.applyIntPragmaIfChanged(ctx, "cache_size", int64(cfg.cacheSizeKiB)); err != nil {
			return err
		}
	}

	if err := c.applyBoolPragmaIfChanged(ctx, "foreign_keys", cfg.foreignKeys); err != nil {
		return err
	}

	if cfg.maxPageCount > 0 {
		if err := c.applyIntPragmaIfChanged(ctx, "max_page_count", cfg.maxPageCount); err != nil {
			return err
		}
	}

	if cfg.pageSize > 0 {
		changed, err := c.applyIntPragmaIfChangedReport(ctx, "page_size", int64(cfg.pageSize))
		if err != nil {
			return err
		}

		if changed {
			if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
				return wrapEngineErr("engine.vacuum", err)
			}
		}
	}

	if cfg.journalMode != "" {
		if err := c.applyJournalModeIfChanged(ctx, cfg.journalMode); err != nil {
			return err
		}
	}

	if err := c.applyBoolPragmaIfChanged(ctx, "read_uncommitted", cfg.readUncommitted); err != nil {
		return err
	}

	if cfg.cellSizeCheck {
		if err := c.applyBoolPragmaIfChanged(ctx, "cell_size_check", true); err != nil {
			return err
		}
	}

	return nil
}

func (c *conn) applyIntPragmaIfChanged(ctx context.Context, name string, want int64) error {
	_, err := c.applyIntPragmaIfChangedReport(ctx, name, want)

	return err
}

func (c *conn) applyIntPragmaIfChangedReport(ctx context.Context, name string, want int64) (bool, error) {
	var current int64

	row := c.db.QueryRowContext(ctx, "PRAGMA "+name)
	if err := row.Scan(&current); err != nil {
		return false, wrapEngineErr("engine.pragma."+name, err)
	}

	if current == want {
		return false, nil
	}

	stmt := fmt.Sprintf("PRAGMA %s = %d", name, want)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return false, wrapEngineErr("engine.pragma."+name, err)
	}

	return true, nil
}

func (c *conn) applyBoolPragmaIfChanged(ctx context.Context, name string, want bool) error {
	var current int64

	row := c.db.QueryRowContext(ctx, "PRAGMA "+name)
	if err := row.Scan(&current); err != nil {
		return wrapEngineErr("engine.pragma."+name, err)
	}

	wantInt := int64(0)
	if want {
		wantInt = 1
	}

	if current == wantInt {
		return nil
	}

	stmt := fmt.Sprintf("PRAGMA %s = %d", name, wantInt)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return wrapEngineErr("engine.pragma."+name, err)
	}

	return nil
}

var validJournalModes = map[string]bool{
	"delete": true, "truncate": true, "persist": true,
	"memory": true, "wal": true, "off": true,
}

func (c *conn) applyJournalModeIfChanged(ctx context.Context, want string) error {
	want = strings.ToLower(want)
	if !validJournalModes[want] {
		return newErr(KindInvalid, "engine.pragma.journal_mode", "", fmt.Errorf("unsupported journal mode %q", want))
	}

	var current string

	row := c.db.QueryRowContext(ctx, "PRAGMA journal_mode")
	if err := row.Scan(&current); err != nil {
		return wrapEngineErr("engine.pragma.journal_mode", err)
	}

	if strings.EqualFold(current, want) {
		return nil
	}

	if _, err := c.db.ExecContext(ctx, "PRAGMA journal_mode = "+want); err != nil {
		return wrapEngineErr("engine.pragma.journal_mode", err)
	}

	return nil
}

func (c *conn) Close() error {
	return c.db.Close()
}

// Prepare compiles sqlText (using ':name' named parameters, the leading
// colon stripped automatically before passing to [Statement.Execute]'s
// keys) into a reusable [Statement].
func (c *conn) Prepare(ctx context.Context, sqlText string) (*Statement, error) {
	stmt, err := c.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, wrapEngineErr("engine.prepare", err)
	}

	return &Statement{stmt: stmt, text: sqlText}, nil
}

// Begin opens a new [Transaction] on this connection.
func (c *conn) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapEngineErr("engine.begin", err)
	}

	return &Transaction{tx: tx}, nil
}

// Statement is a prepared SQL statement bound with named parameters.
type Statement struct {
	stmt *sql.Stmt
	text string
}

func (s *Statement) Close() error {
	return s.stmt.Close()
}

// params converts a name->value map into database/sql named arguments.
func params(p map[string]any) []any {
	args := make([]any, 0, len(p))
	for k, v := range p {
		args = append(args, sql.Named(k, v))
	}

	return args
}

// Execute runs an INSERT/UPDATE/DELETE and returns the driver Result.
func (s *Statement) Execute(ctx context.Context, p map[string]any) (sql.Result, error) {
	res, err := s.stmt.ExecContext(ctx, params(p)...)
	if err != nil {
		return nil, wrapEngineErr("engine.execute", err)
	}

	return res, nil
}

// ExecuteScalarInt runs a single-row, single-column query and returns it as
// an int64.
func (s *Statement) ExecuteScalarInt(ctx context.Context, p map[string]any) (int64, error) {
	row := s.stmt.QueryRowContext(ctx, params(p)...)

	var v int64
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, newErr(KindNotFound, "engine.execute_scalar_int", "", err)
		}

		return 0, wrapEngineErr("engine.execute_scalar_int", err)
	}

	return v, nil
}

// Open runs a query and returns a lazy, forward-only [ResultSet].
func (s *Statement) Open(ctx context.Context, p map[string]any) (*ResultSet, error) {
	rows, err := s.stmt.QueryContext(ctx, params(p)...)
	if err != nil {
		return nil, wrapEngineErr("engine.open", err)
	}

	return newResultSet(rows)
}

// Transaction wraps a *sql.Tx. Dropping it without Commit leaves it
// rolled back only once the caller explicitly calls Rollback; callers must
// always call one or the other, usually via defer.
type Transaction struct {
	tx   *sql.Tx
	done bool
}

func (t *Transaction) Prepare(ctx context.Context, sqlText string) (*Statement, error) {
	stmt, err := t.tx.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, wrapEngineErr("engine.tx.prepare", err)
	}

	return &Statement{stmt: stmt, text: sqlText}, nil
}

func (t *Transaction) Exec(ctx context.Context, sqlText string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, wrapEngineErr("engine.tx.exec", err)
	}

	return res, nil
}

func (t *Transaction) Commit() error {
	if t.done {
		return nil
	}

	t.done = true

	if err := t.tx.Commit(); err != nil {
		return wrapEngineErr("engine.tx.commit", err)
	}

	return nil
}

func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return wrapEngineErr("engine.tx.rollback", err)
	}

	return nil
}

// ResultSet yields a lazy, forward-only sequence of rows. Column names
// compare case-insensitively; get_text returns "" for NULL.
type ResultSet struct {
	rows *sql.Rows
	cols []string
	idx  map[string]int
	vals []any
	err  error
}

func newResultSet(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()

		return nil, wrapEngineErr("engine.columns", err)
	}

	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[strings.ToLower(c)] = i
	}

	return &ResultSet{rows: rows, cols: cols, idx: idx}, nil
}

// Next advances to the next row, scanning its values. Returns false at EOF
// or on error; check Err to distinguish the two.
func (r *ResultSet) Next() bool {
	if !r.rows.Next() {
		return false
	}

	dest := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))

	for i := range dest {
		ptrs[i] = &dest[i]
	}

	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = err

		return false
	}

	r.vals = dest

	return true
}

func (r *ResultSet) Err() error {
	if r.err != nil {
		return r.err
	}

	return r.rows.Err()
}

func (r *ResultSet) Close() error {
	return r.rows.Close()
}

func (r *ResultSet) col(nameOrIndex any) (int, bool) {
	switch v := nameOrIndex.(type) {
	case int:
		if v < 0 || v >= len(r.vals) {
			return 0, false
		}

		return v, true
	case string:
		i, ok := r.idx[strings.ToLower(v)]

		return i, ok
	default:
		return 0, false
	}
}

func (r *ResultSet) GetInt(nameOrIndex any) int {
	return int(r.GetI64(nameOrIndex))
}

func (r *ResultSet) GetI64(nameOrIndex any) int64 {
	i, ok := r.col(nameOrIndex)
	if !ok {
		return 0
	}

	return asInt64(r.vals[i])
}

func (r *ResultSet) GetText(nameOrIndex any) string {
	i, ok := r.col(nameOrIndex)
	if !ok {
		return ""
	}

	switch v := r.vals[i].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (r *ResultSet) GetBlob(nameOrIndex any) []byte {
	i, ok := r.col(nameOrIndex)
	if !ok {
		return nil
	}

	if b, ok := r.vals[i].([]byte); ok {
		return b
	}

	return nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case []byte:
		n, _ := strconv.ParseInt(string(t), 10, 64)

		return n
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)

		return n
	default:
		return 0
	}
}

// wrapEngineErr attaches KindEngine to every non-OK engine call so callers
// can distinguish storage-engine failures from validation or auth errors.
func wrapEngineErr(op string, err error) error {
	return newErr(KindEngine, op, "", newEngineError(err))
}
