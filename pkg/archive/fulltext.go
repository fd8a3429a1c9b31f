package archive

import (
	"context"

	"github.com/calvinalkan/docarchive/internal/alog"
)

// FulltextSink is a write-only collaborator that receives meta-tag
// updates for indexing. The default sink writes into the shard-local
// meta_fts table that schema.go already bootstraps; a host may supply its
// own sink to mirror updates into an external index instead.
type FulltextSink interface {
	IndexMeta(ctx context.Context, documentID, tags string) error
}

// sqliteFulltextSink is the default [FulltextSink]: it writes straight into
// the shard owning documentID's meta_fts virtual table, the same table
// FindMetaData queries.
type sqliteFulltextSink struct {
	pool *shardPool
}

func (s *sqliteFulltextSink) IndexMeta(ctx context.Context, documentID, tags string) error {
	sh, err := s.pool.shardFor(documentID)
	if err != nil {
		return err
	}

	return sh.withWrite(func(c *conn) error {
		return upsertMetaFTSLocked(ctx, c, documentID, tags)
	})
}

// fulltextJob is one queued (document, tags) update.
type fulltextJob struct {
	documentID string
	tags       string
}

// fulltextWorker drains a buffered channel of [fulltextJob]s on its own
// goroutine, calling the configured [FulltextSink] for each. It runs off
// the caller's path so a slow or unavailable sink never blocks
// AssignMetaData/ReplaceMetaData.
type fulltextWorker struct {
	sink   FulltextSink
	jobs   chan fulltextJob
	done   chan struct{}
	cancel context.CancelFunc
}

const fulltextQueueDepth = 256

func startFulltextWorker(sink FulltextSink) *fulltextWorker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &fulltextWorker{
		sink:   sink,
		jobs:   make(chan fulltextJob, fulltextQueueDepth),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go w.run(ctx)

	return w
}

func (w *fulltextWorker) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			// Index failures are swallowed: the full-text sink is a
			// best-effort mirror, not the system of record.
			if err := w.sink.IndexMeta(ctx, job.documentID, job.tags); err != nil {
				alog.WithComponent("fulltext").Warn().Err(err).Str("document", job.documentID).Msg("index update failed")
			}
		}
	}
}

// enqueue stages job without blocking the caller, dropping it if the queue
// is full rather than applying backpressure to AssignMetaData/ReplaceMetaData.
func (w *fulltextWorker) enqueue(job fulltextJob) {
	select {
	case w.jobs <- job:
	default:
	}
}

func (w *fulltextWorker) stop() {
	w.cancel()
	<-w.done
}
