package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
)

const (
	redisKeyPrefix  = "sshagent:tracker:"
	redisStepIndex  = redisKeyPrefix + "steps"
	redisAttemptTTL = 30 * 24 * time.Hour
)

// RedisStore persists the attempt/error ledger in Redis so multiple
// Coordinator processes share one ledger, using the same
// key-prefix and JSON-payload conventions as the rest of the package.
type RedisStore struct {
	client *redis.Client
	logger coreapi.Logger
	ctx    context.Context
}

// NewRedisStore wraps an existing *redis.Client. The caller owns the
// client's lifecycle (Close).
func NewRedisStore(client *redis.Client, logger coreapi.Logger) *RedisStore {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	return &RedisStore{client: client, logger: logger, ctx: context.Background()}
}

func attemptsKey(stepID string) string { return redisKeyPrefix + "attempts:" + stepID }
func errorsKey(stepID string) string   { return redisKeyPrefix + "errors:" + stepID }

func (r *RedisStore) AppendAttempt(rec model.AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal attempt record: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(r.ctx, attemptsKey(rec.StepID), data)
	pipe.Expire(r.ctx, attemptsKey(rec.StepID), redisAttemptTTL)
	pipe.SAdd(r.ctx, redisStepIndex, rec.StepID)
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Error("redis tracker append attempt failed", map[string]interface{}{"step_id": rec.StepID, "error": err.Error()})
		return fmt.Errorf("append attempt to redis: %w", err)
	}
	return nil
}

func (r *RedisStore) AppendError(rec model.ErrorRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal error record: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(r.ctx, errorsKey(rec.StepID), data)
	pipe.Expire(r.ctx, errorsKey(rec.StepID), redisAttemptTTL)
	pipe.SAdd(r.ctx, redisStepIndex, rec.StepID)
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Error("redis tracker append error failed", map[string]interface{}{"step_id": rec.StepID, "error": err.Error()})
		return fmt.Errorf("append error to redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Attempts(stepID string) ([]model.AttemptRecord, error) {
	raw, err := r.client.LRange(r.ctx, attemptsKey(stepID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("lrange attempts: %w", err)
	}
	out := make([]model.AttemptRecord, 0, len(raw))
	for _, s := range raw {
		var rec model.AttemptRecord
		if err := json.Unmarshal([]byte(s), &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RedisStore) Errors(stepID string) ([]model.ErrorRecord, error) {
	raw, err := r.client.LRange(r.ctx, errorsKey(stepID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("lrange errors: %w", err)
	}
	out := make([]model.ErrorRecord, 0, len(raw))
	for _, s := range raw {
		var rec model.ErrorRecord
		if err := json.Unmarshal([]byte(s), &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RedisStore) stepIDs() ([]string, error) {
	return r.client.SMembers(r.ctx, redisStepIndex).Result()
}

func (r *RedisStore) AllAttempts() ([]model.AttemptRecord, error) {
	ids, err := r.stepIDs()
	if err != nil {
		return nil, fmt.Errorf("list step index: %w", err)
	}
	var out []model.AttemptRecord
	for _, id := range ids {
		recs, err := r.Attempts(id)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (r *RedisStore) AllErrors() ([]model.ErrorRecord, error) {
	ids, err := r.stepIDs()
	if err != nil {
		return nil, fmt.Errorf("list step index: %w", err)
	}
	var out []model.ErrorRecord
	for _, id := range ids {
		recs, err := r.Errors(id)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// DropBefore removes records older than cutoff for steps not in
// activeSteps. Redis has no native "filter list in place" primitive
// cheaper than rewrite, so each affected list is read, filtered, and
// replaced transactionally.
func (r *RedisStore) DropBefore(cutoff time.Time, activeSteps map[string]bool) error {
	ids, err := r.stepIDs()
	if err != nil {
		return fmt.Errorf("list step index: %w", err)
	}
	for _, id := range ids {
		if activeSteps[id] {
			continue
		}
		if err := r.dropAttemptsBefore(id, cutoff); err != nil {
			return err
		}
		if err := r.dropErrorsBefore(id, cutoff); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStore) dropAttemptsBefore(stepID string, cutoff time.Time) error {
	recs, err := r.Attempts(stepID)
	if err != nil {
		return err
	}
	kept := make([]model.AttemptRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	return r.replaceAttempts(stepID, kept)
}

func (r *RedisStore) dropErrorsBefore(stepID string, cutoff time.Time) error {
	recs, err := r.Errors(stepID)
	if err != nil {
		return err
	}
	kept := make([]model.ErrorRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	return r.replaceErrors(stepID, kept)
}

func (r *RedisStore) replaceAttempts(stepID string, recs []model.AttemptRecord) error {
	pipe := r.client.TxPipeline()
	pipe.Del(r.ctx, attemptsKey(stepID))
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		pipe.RPush(r.ctx, attemptsKey(stepID), data)
	}
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisStore) replaceErrors(stepID string, recs []model.ErrorRecord) error {
	pipe := r.client.TxPipeline()
	pipe.Del(r.ctx, errorsKey(stepID))
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		pipe.RPush(r.ctx, errorsKey(stepID), data)
	}
	_, err := pipe.Exec(r.ctx)
	return err
}
