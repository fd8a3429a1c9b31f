package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Optimizer_Tick_RunsPragmaOptimizeAgainstEveryShard(t *testing.T) {
	t.Parallel()

	pool, err := openShardPool(context.Background(), ":memory:", 2, Config{})
	require.NoError(t, err)
	defer pool.close()

	o := startOptimizer(pool, time.Hour)
	defer o.stop()

	o.tick(context.Background()) // PRAGMA optimize against an empty schema must not error
}

func Test_Optimizer_Stop_ReturnsWhileRunLoopIsIdle(t *testing.T) {
	t.Parallel()

	pool, err := openShardPool(context.Background(), ":memory:", 1, Config{})
	require.NoError(t, err)
	defer pool.close()

	o := startOptimizer(pool, time.Hour)
	o.stop() // must return without hanging even though run() is blocked on the ticker
}
