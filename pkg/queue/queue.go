// Package queue maps unit-of-work messages onto asynq: one queue per stage,
// at-least-once delivery, bounded retries with backoff.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
)

// queuePriorities gives write the most worker slots since generation calls
// dominate wall time.
var queuePriorities = map[string]int{
	string(models.StageParse):   2,
	string(models.StageAnalyze): 2,
	string(models.StageCurate):  1,
	string(models.StageWrite):   4,
	string(models.StageBuild):   1,
}

// StageQueues implements pipeline.Enqueuer on asynq.
type StageQueues struct {
	client *asynq.Client
	cfg    *config.PipelineConfig
}

// New creates the enqueue side of the stage queues.
func New(redisCfg *config.RedisConfig, pipeCfg *config.PipelineConfig) *StageQueues {
	return &StageQueues{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}),
		cfg: pipeCfg,
	}
}

// Enqueue serializes the message into its stage's queue. The task id is the
// message id, so an accidental double-enqueue of the same message dedupes;
// redelivery of a processed message is still possible and handled by the
// workers' upsert semantics.
func (q *StageQueues) Enqueue(ctx context.Context, msg pipeline.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(string(msg.Body.Stage())),
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout()),
		asynq.TaskID(msg.ID),
	}
	task := asynq.NewTask(string(msg.Body.Kind()), payload, opts...)
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue task %s: %w", msg.Body.Kind(), err)
	}
	return nil
}

// Close releases the client connection.
func (q *StageQueues) Close() error {
	return q.client.Close()
}

// NewServer builds the consume side: an asynq server polling every stage
// queue with the configured concurrency and retry backoff.
func NewServer(redisCfg *config.RedisConfig, pipeCfg *config.PipelineConfig) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		asynq.Config{
			Concurrency: pipeCfg.Concurrency,
			Queues:      queuePriorities,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n+1) * pipeCfg.RetryDelay()
			},
		},
	)
}
