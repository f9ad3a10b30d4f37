package dispatch

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	r "gopkg.in/redis.v5"

	"github.com/markdave123-py/Cadence/internal/core"
)

const popTimeout = 5 * time.Second

// RedisQueue passes jobs through a redis list: LPUSH to dispatch, BRPOP to
// consume.
type RedisQueue struct {
	client *r.Client
	queue  string
}

func NewRedisQueue(url, queue string) (*RedisQueue, error) {
	var opts *r.Options
	var err error

	if opts, err = r.ParseURL(url); err != nil {
		return nil, err
	}

	return &RedisQueue{
		client: r.NewClient(opts),
		queue:  queue,
	}, nil
}

func (q *RedisQueue) Dispatch(ctx context.Context, jobName string, job core.ScrapeJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encode(jobName, job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(q.queue, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.queue, err)
	}
	return nil
}

// Consume runs workers loops popping jobs named jobName and passing them to
// handle until ctx is cancelled. Handler errors are logged; the job is not
// requeued since the handler records failures on the job row.
func (q *RedisQueue) Consume(ctx context.Context, jobName string, workers int, handle func(context.Context, core.ScrapeJob) error) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= workers; w++ {
		g.Go(func() error {
			logger := log.WithFields(log.Fields{"queue": q.queue, "worker": w})
			for gctx.Err() == nil {
				res, err := q.client.BRPop(popTimeout, q.queue).Result()
				if err == r.Nil {
					continue
				}
				if err != nil {
					logger.WithError(err).Warn("redis pop failed, backing off")
					select {
					case <-gctx.Done():
					case <-time.After(popTimeout):
					}
					continue
				}
				// BRPOP replies [key, value].
				if len(res) != 2 {
					continue
				}
				env, err := Decode([]byte(res[1]))
				if err != nil {
					logger.WithError(err).Error("dropping malformed job")
					continue
				}
				if env.Job != jobName {
					logger.WithField("job", env.Job).Warn("dropping job for another function")
					continue
				}
				if err := handle(gctx, env.ScrapeJob()); err != nil {
					logger.WithError(err).WithField("web_source", env.SourceID).Warn("job failed")
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
