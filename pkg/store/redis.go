package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/switchyard-net/switchyard/pkg/util"
)

const (
	sampleKeyPrefix = "health:samples:" // list of sample JSON, newest first
	alertKeyPrefix  = "health:alert:"   // alert JSON by id
	activeKeyPrefix = "health:active:"  // hash per category: alias -> id
)

// RedisStore keeps samples in capped per-alias lists and alerts as JSON
// values with a per-category active index.
type RedisStore struct {
	client        *redis.Client
	sampleHistory int64
}

func NewRedisStore(addr, password string, db, sampleHistory int) *RedisStore {
	if sampleHistory <= 0 {
		sampleHistory = 1000
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		sampleHistory: int64(sampleHistory),
	}
}

// Ping verifies the connection at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) StoreSample(ctx context.Context, alias string, cpuPct float64, rawPreview string, at time.Time) error {
	sample := Sample{
		Alias:      alias,
		CPUPct:     cpuPct,
		RawPreview: util.Truncate(rawPreview, RawPreviewLimit),
		At:         at,
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshaling sample for %s: %w", alias, err)
	}

	key := sampleKeyPrefix + alias
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.sampleHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing sample for %s: %w", alias, err)
	}
	return nil
}

// Samples returns up to limit most recent samples for an alias.
func (s *RedisStore) Samples(ctx context.Context, alias string, limit int64) ([]*Sample, error) {
	raw, err := s.client.LRange(ctx, sampleKeyPrefix+alias, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading samples for %s: %w", alias, err)
	}
	samples := make([]*Sample, 0, len(raw))
	for _, r := range raw {
		var sample Sample
		if err := json.Unmarshal([]byte(r), &sample); err != nil {
			continue
		}
		samples = append(samples, &sample)
	}
	return samples, nil
}

func (s *RedisStore) FindActiveAlert(ctx context.Context, alias, category string) (*Alert, error) {
	id, err := s.client.HGet(ctx, activeKeyPrefix+category, alias).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up active %s alert for %s: %w", category, alias, err)
	}
	return s.getAlert(ctx, id)
}

func (s *RedisStore) CreateAlert(ctx context.Context, alias, category, severity, message, meta string) (*Alert, error) {
	alert := &Alert{
		ID:        uuid.NewString(),
		Alias:     alias,
		Category:  category,
		Severity:  severity,
		Message:   message,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.putAlert(ctx, alert); err != nil {
		return nil, err
	}
	if err := s.client.HSet(ctx, activeKeyPrefix+category, alias, alert.ID).Err(); err != nil {
		return nil, fmt.Errorf("indexing alert %s: %w", alert.ID, err)
	}
	return alert, nil
}

func (s *RedisStore) ClearAlert(ctx context.Context, id string, at time.Time) error {
	alert, err := s.getAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert == nil || alert.ClearedAt != nil {
		return nil
	}
	cleared := at.UTC()
	alert.ClearedAt = &cleared
	if err := s.putAlert(ctx, alert); err != nil {
		return err
	}
	return s.client.HDel(ctx, activeKeyPrefix+alert.Category, alert.Alias).Err()
}

func (s *RedisStore) ActiveAlerts(ctx context.Context, category string) ([]*Alert, error) {
	ids, err := s.client.HVals(ctx, activeKeyPrefix+category).Result()
	if err != nil {
		return nil, fmt.Errorf("listing active %s alerts: %w", category, err)
	}
	alerts := make([]*Alert, 0, len(ids))
	for _, id := range ids {
		alert, err := s.getAlert(ctx, id)
		if err != nil || alert == nil {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func (s *RedisStore) getAlert(ctx context.Context, id string) (*Alert, error) {
	raw, err := s.client.Get(ctx, alertKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading alert %s: %w", id, err)
	}
	var alert Alert
	if err := json.Unmarshal([]byte(raw), &alert); err != nil {
		return nil, fmt.Errorf("decoding alert %s: %w", id, err)
	}
	return &alert, nil
}

func (s *RedisStore) putAlert(ctx context.Context, alert *Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert %s: %w", alert.ID, err)
	}
	if err := s.client.Set(ctx, alertKeyPrefix+alert.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("writing alert %s: %w", alert.ID, err)
	}
	return nil
}
