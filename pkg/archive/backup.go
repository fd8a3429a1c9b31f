package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/docarchive/pkg/fs"
)

// Backup writes a consistent copy of every shard database into dir, using
// SQLite's VACUUM INTO so the copy is taken under the shard's own write
// lock without blocking concurrent readers on other shards.
func (s *Store) Backup(ctx context.Context, dir string) error {
	fsys := fs.NewReal()

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return newErr(KindEngine, "store.backup.mkdir", "", err)
	}

	for _, sh := range s.pool.all() {
		dest := filepath.Join(dir, shardFileName(sh.index))

		if err := sh.withWrite(func(c *conn) error {
			stmt := fmt.Sprintf("VACUUM INTO '%s'", escapeSingleQuotes(dest))
			_, err := c.db.ExecContext(ctx, stmt)

			return err
		}); err != nil {
			return newErr(KindEngine, "store.backup", "", err)
		}
	}

	return nil
}

func escapeSingleQuotes(s string) string {
	out := make([]byte, 0, len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')

			continue
		}

		out = append(out, s[i])
	}

	return string(out)
}

// Restore copies shard database files from a directory produced by
// [Store.Backup] into cfg's data location, overwriting any existing
// shards. It operates on a closed store: stop the current [Store], call
// Restore, then [Open] a fresh one.
func Restore(cfg Config, dir string) error {
	cfg = cfg.withDefaults()

	if cfg.DataLocation == ":memory:" {
		return newErr(KindInvalid, "store.restore", "", fmt.Errorf("cannot restore into an in-memory store"))
	}

	fsys := fs.NewReal()
	writer := fs.NewAtomicWriter(fsys)

	if err := fsys.MkdirAll(cfg.DataLocation, 0o755); err != nil {
		return newErr(KindEngine, "store.restore.mkdir", "", err)
	}

	for i := 0; i < cfg.Backends; i++ {
		name := shardFileName(i)
		src := filepath.Join(dir, name)

		data, err := fsys.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return newErr(KindEngine, "store.restore.read", "", err)
		}

		dest := filepath.Join(cfg.DataLocation, name)

		if err := writer.Write(dest, bytes.NewReader(data), fs.AtomicWriteOptions{Perm: 0o644}); err != nil {
			return newErr(KindEngine, "store.restore.write", "", err)
		}
	}

	return nil
}

// RebuildFulltext rebuilds every shard's meta_fts FTS5 index from the
// table's own shadow data, using FTS5's built-in 'rebuild' command.
func (s *Store) RebuildFulltext(ctx context.Context) error {
	for _, sh := range s.pool.all() {
		if err := sh.withWrite(func(c *conn) error {
			_, err := c.db.ExecContext(ctx, "INSERT INTO meta_fts(meta_fts) VALUES('rebuild')")

			return err
		}); err != nil {
			return newErr(KindEngine, "store.rebuild_fulltext", "", err)
		}
	}

	return nil
}
