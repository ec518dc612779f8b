package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// Redis key layout: one hash per run plus a sorted set of run ids scored by
// start time in milliseconds.
const (
	RunTable = "SKILLET_RUN"
	RunIndex = "SKILLET_RUNS"
)

// RedisStore keeps records in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func runKey(runID string) string {
	return fmt.Sprintf("%s|%s", RunTable, runID)
}

// Save writes the hash and index entry in one transaction.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	fields, err := recordFields(rec)
	if err != nil {
		return err
	}
	key := runKey(rec.RunID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.ZAdd(ctx, RunIndex, &redis.Z{Score: float64(rec.Started.UnixMilli()), Member: rec.RunID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get reads one record.
func (s *RedisStore) Get(ctx context.Context, runID string) (*Record, error) {
	vals, err := s.client.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, util.ErrNotFound)
	}
	return parseRecord(runID, vals)
}

// List walks the index newest first. Index members whose hash has gone are
// skipped.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, RunIndex, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			util.Warnf("Skipping run %s: %v", id, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// recordFields flattens a record into hash fields. Steps and context are
// stored as JSON.
func recordFields(rec *Record) (map[string]interface{}, error) {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	return map[string]interface{}{
		"skillet":    rec.Skillet,
		"device":     rec.Device,
		"dry_run":    strconv.FormatBool(rec.DryRun),
		"status":     rec.Status,
		"error":      rec.Error,
		"error_kind": rec.ErrorKind,
		"started":    rec.Started.Format(time.RFC3339Nano),
		"finished":   rec.Finished.Format(time.RFC3339Nano),
		"committed":  strconv.FormatBool(rec.Committed),
		"steps":      string(steps),
		"context":    string(ctxJSON),
	}, nil
}

func parseRecord(runID string, vals map[string]string) (*Record, error) {
	rec := &Record{
		RunID:     runID,
		Skillet:   vals["skillet"],
		Device:    vals["device"],
		DryRun:    vals["dry_run"] == "true",
		Status:    vals["status"],
		Error:     vals["error"],
		ErrorKind: vals["error_kind"],
		Committed: vals["committed"] == "true",
	}
	var err error
	if rec.Started, err = parseTime(vals["started"]); err != nil {
		return nil, fmt.Errorf("run %s started: %w", runID, err)
	}
	if rec.Finished, err = parseTime(vals["finished"]); err != nil {
		return nil, fmt.Errorf("run %s finished: %w", runID, err)
	}
	if s := vals["steps"]; s != "" {
		if err := json.Unmarshal([]byte(s), &rec.Steps); err != nil {
			return nil, fmt.Errorf("run %s steps: %w", runID, err)
		}
	}
	if s := vals["context"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &rec.Context); err != nil {
			return nil, fmt.Errorf("run %s context: %w", runID, err)
		}
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
