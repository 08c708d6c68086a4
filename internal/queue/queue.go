// Package queue implements the Queue Fabric (§4.2): per-tenant Redis FIFO
// lists for pipeline jobs, plus a global pub/sub channel for progress
// events. Pop removes a job from its list (BLPOP) before the consumer
// processes it, so a consumer that crashes mid-job loses that job and
// nothing redelivers it. Every consumer in this codebase is idempotent on
// (doc_id, stage), so a job that is pushed again is harmless.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const eventsChannel = "pipeline:events"

// Stage names the FIFO list a job is pushed to.
type Stage string

const (
	StageParse      Stage = "parse"
	StagePolicy     Stage = "policy"
	StageEmbedding  Stage = "embedding"
	StageMultimodal Stage = "multimodal"
)

// Queue wraps a Redis client with the tenant-scoped list and pub/sub
// conventions every worker shares.
type Queue struct {
	client *redis.Client
}

// New connects to addr, mirroring the 3-second reachability check used
// elsewhere in the pipeline's storage provisioning.
func New(ctx context.Context, addr, password string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to queue fabric: %w", err)
	}
	return &Queue{client: client}, nil
}

// Close releases the underlying connection pool.
func (q *Queue) Close() error { return q.client.Close() }

func queueKey(tenantID string, stage Stage) string {
	return fmt.Sprintf("tenant:%s:queue:%s", tenantID, stage)
}

// Push appends a JSON-encoded job to tenantID's stage list.
func (q *Queue) Push(ctx context.Context, tenantID string, stage Stage, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.client.RPush(ctx, queueKey(tenantID, stage), payload).Err()
}

// Pop blocks up to timeout for the next job on tenantID's stage list,
// returning its raw JSON payload. A zero-length result with a nil error
// means the wait timed out with nothing to process.
func (q *Queue) Pop(ctx context.Context, tenantID string, stage Stage, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BLPop(ctx, timeout, queueKey(tenantID, stage)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPop returns [key, value]; the payload is always the second element.
	if len(res) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply shape: %v", res)
	}
	return []byte(res[1]), nil
}

// PublishEvent best-effort publishes event to the shared progress channel.
// A publish failure never fails the caller's pipeline work; it is returned
// only so callers can log it.
func (q *Queue) PublishEvent(ctx context.Context, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return q.client.Publish(ctx, eventsChannel, payload).Err()
}

// Subscribe returns a PubSub listening on the shared progress channel.
// Callers must Close it when done.
func (q *Queue) Subscribe(ctx context.Context) *redis.PubSub {
	return q.client.Subscribe(ctx, eventsChannel)
}
