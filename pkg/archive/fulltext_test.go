package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	calls chan fulltextJob
}

func newRecordingSink() *recordingSink {
	return &recordingSink{calls: make(chan fulltextJob, 16)}
}

func (r *recordingSink) IndexMeta(ctx context.Context, documentID, tags string) error {
	r.calls <- fulltextJob{documentID: documentID, tags: tags}

	return nil
}

func Test_FulltextWorker_EnqueueDrainsToSinkAsynchronously(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	w := startFulltextWorker(sink)
	defer w.stop()

	w.enqueue(fulltextJob{documentID: "doc1", tags: "author=alice"})

	got := <-sink.calls
	assert.Equal(t, "doc1", got.documentID)
	assert.Equal(t, "author=alice", got.tags)
}

func Test_FulltextWorker_Enqueue_DropsJobsOnceQueueIsFull(t *testing.T) {
	t.Parallel()

	w := &fulltextWorker{jobs: make(chan fulltextJob, 1)}
	w.enqueue(fulltextJob{documentID: "a"})
	w.enqueue(fulltextJob{documentID: "b"}) // queue full, must not block

	require.Len(t, w.jobs, 1)
	assert.Equal(t, "a", (<-w.jobs).documentID)
}

func Test_FulltextWorker_Stop_WaitsForRunLoopToExit(t *testing.T) {
	t.Parallel()

	w := startFulltextWorker(newRecordingSink())
	w.stop()

	select {
	case <-w.done:
	default:
		t.Fatal("done channel should be closed once stop returns")
	}
}

func Test_SqliteFulltextSink_IndexMeta_WritesIntoMetaFTS(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	pool, err := openShardPool(ctx, ":memory:", 1, Config{})
	require.NoError(t, err)
	defer pool.close()

	sink := &sqliteFulltextSink{pool: pool}
	require.NoError(t, sink.IndexMeta(ctx, "doc1", "author=alice"))

	err = pool.shards[0].withRead(func(c *conn) error {
		got, err := currentMetaTagsLocked(ctx, c, "doc1")
		if err != nil {
			return err
		}

		assert.Equal(t, "author=alice", got)

		return nil
	})
	require.NoError(t, err)
}
