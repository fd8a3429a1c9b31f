package archive

import (
	"context"
	"sync"
	"time"

	"github.com/calvinalkan/docarchive/internal/alog"
)

// optimizer runs PRAGMA optimize on every shard on a fixed period.
// Failures are logged and the next tick is rescheduled; cancelling stops
// further ticks but does not abort one already running.
type optimizer struct {
	pool     *shardPool
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startOptimizer(pool *shardPool, interval time.Duration) *optimizer {
	ctx, cancel := context.WithCancel(context.Background())

	o := &optimizer{pool: pool, interval: interval, cancel: cancel}

	o.wg.Add(1)

	go o.run(ctx)

	return o
}

func (o *optimizer) run(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick runs PRAGMA optimize on every distinct shard in parallel, each
// under that shard's write lock.
func (o *optimizer) tick(ctx context.Context) {
	var wg sync.WaitGroup

	for _, sh := range o.pool.all() {
		wg.Add(1)

		go func(sh *shard) {
			defer wg.Done()

			err := sh.withWrite(func(c *conn) error {
				_, err := c.db.ExecContext(ctx, "PRAGMA optimize")

				return err
			})
			if err != nil {
				alog.WithComponent("optimizer").Warn().Err(err).Int("shard", sh.index).Msg("optimize failed, will retry next tick")
			}
		}(sh)
	}

	wg.Wait()
}

func (o *optimizer) stop() {
	o.cancel()
	o.wg.Wait()
}
