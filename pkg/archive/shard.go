package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// maxShards is the upper bound on shard count N.
const maxShards = 256

// shard owns one partition's writer and reader connections plus the locks
// serializing access to them. This package does not implement a
// re-entrant mutex; instead every internal helper that a write path needs
// to call while already holding writeMu is split into a "Locked" variant
// taking the already-open *conn directly, so no goroutine ever attempts to
// acquire writeMu twice.
type shard struct {
	index  int
	writer *conn
	reader *conn

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// shardPool creates, owns and dispatches to the N shard databases.
type shardPool struct {
	shards []*shard
	route  [256]int // hex byte value -> shard index
}

func shardFileName(i int) string {
	return fmt.Sprintf("%03ddomla.archive", i)
}

// openShardPool creates (or opens) n shard databases under dir, or a
// single in-memory shard when dir is ":memory:", and builds the 256-entry
// routing table by assigning ceil(256/n) consecutive byte values to each
// shard in creation order.
func openShardPool(ctx context.Context, dir string, n int, cfg Config) (*shardPool, error) {
	if n <= 0 {
		n = 1
	}

	if n > maxShards {
		return nil, newErr(KindInvalid, "shard.open", "", fmt.Errorf("backends %d exceeds max %d", n, maxShards))
	}

	memory := dir == ":memory:"

	if !memory {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newErr(KindEngine, "shard.mkdir", "", err)
		}
	}

	pool := &shardPool{shards: make([]*shard, n)}

	writerPragmas := pragmaConfig{
		busyTimeoutMS: int(cfg.BusyTimeout.Milliseconds()),
		cacheSizeKiB:  defaultCacheSizeKiB,
		foreignKeys:   true,
		pageSize:      defaultPageSize,
		journalMode:   "wal",
		cellSizeCheck: true,
	}
	readerPragmas := pragmaConfig{
		busyTimeoutMS: int(cfg.BusyTimeout.Milliseconds()),
		foreignKeys:   true,
	}

	for i := 0; i < n; i++ {
		path := ":memory:"
		if !memory {
			path = filepath.Join(dir, shardFileName(i))
		}

		writer, err := openConn(ctx, modeOpenOrCreate, path, false, writerPragmas)
		if err != nil {
			pool.closeOpened(i)

			return nil, err
		}

		if err := ensureSchema(ctx, writer); err != nil {
			_ = writer.Close()
			pool.closeOpened(i)

			return nil, err
		}

		readerPath := path
		if memory {
			// a distinct :memory: DSN would open an unrelated database; a
			// single ephemeral shard reuses the writer connection as its
			// own reader, since there is nothing to serialize against.
			pool.shards[i] = &shard{index: i, writer: writer, reader: writer}

			continue
		}

		reader, err := openConn(ctx, modeOpenExisting, readerPath, true, readerPragmas)
		if err != nil {
			_ = writer.Close()
			pool.closeOpened(i)

			return nil, err
		}

		pool.shards[i] = &shard{index: i, writer: writer, reader: reader}
	}

	pool.buildRoutingTable(n)

	return pool, nil
}

func (p *shardPool) closeOpened(upTo int) {
	for i := 0; i < upTo; i++ {
		if p.shards[i] != nil {
			_ = p.shards[i].writer.Close()

			if p.shards[i].reader != p.shards[i].writer {
				_ = p.shards[i].reader.Close()
			}
		}
	}
}

// buildRoutingTable assigns ceil(256/n) consecutive byte values to each
// shard in creation order.
func (p *shardPool) buildRoutingTable(n int) {
	span := (256 + n - 1) / n

	for b := 0; b < 256; b++ {
		idx := b / span
		if idx >= n {
			idx = n - 1
		}

		p.route[b] = idx
	}
}

// shardFor maps a document id to its owning shard by parsing the first two
// hex characters of id as a byte. Ids are generated by [NewID] as
// canonical UUID v4 text, whose first two characters are always hex.
func (p *shardPool) shardFor(id string) (*shard, error) {
	if len(id) < 2 {
		return nil, newErr(KindInvalid, "shard.route", id, fmt.Errorf("id too short to route"))
	}

	var b byte

	if _, err := fmt.Sscanf(id[:2], "%02x", &b); err != nil {
		return nil, newErr(KindInvalid, "shard.route", id, fmt.Errorf("id prefix %q is not hex", id[:2]))
	}

	return p.shards[p.route[b]], nil
}

func (p *shardPool) all() []*shard {
	return p.shards
}

func (p *shardPool) close() error {
	var firstErr error

	for _, s := range p.shards {
		if err := s.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		if s.reader != s.writer {
			if err := s.reader.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// withRead runs fn with the shard's read lock held around fn's query scope.
func (s *shard) withRead(fn func(c *conn) error) error {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	return fn(s.reader)
}

// withWrite runs fn with the shard's write lock held around fn's
// multi-statement write scope. fn may call any "Locked"-suffixed helper
// against s.writer without deadlocking, since those helpers never attempt
// to acquire writeMu themselves.
func (s *shard) withWrite(fn func(c *conn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return fn(s.writer)
}

// fanOut runs query against every distinct shard reader in parallel and
// concatenates the per-shard results in shard-index order.
func fanOut[T any](p *shardPool, query func(c *conn) ([]T, error)) ([]T, error) {
	results := make([][]T, len(p.shards))
	errs := make([]error, len(p.shards))

	var wg sync.WaitGroup

	for i, s := range p.shards {
		wg.Add(1)

		go func(i int, s *shard) {
			defer wg.Done()

			err := s.withRead(func(c *conn) error {
				rows, err := query(c)
				if err != nil {
					return err
				}

				results[i] = rows

				return nil
			})

			errs[i] = err
		}(i, s)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([]T, 0)
	for _, rows := range results {
		out = append(out, rows...)
	}

	return out, nil
}
