package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

const (
	allocationKeyPrefix  = "alloc:row:"
	totalKeyPrefix       = "alloc:total:"
	holderIndexKeyPrefix = "alloc:holder:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour

	IntegrityStream = "ledger:integrity"
)

// applyDeltaScript updates the row, the product total and the holder index in
// one step. Returns {1, new} on success and {0, current} when the row would go
// negative.
var applyDeltaScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local delta = tonumber(ARGV[1])
local next = current + delta

if next < 0 then
	return {0, current}
end

redis.call('SET', KEYS[1], next)
redis.call('INCRBY', KEYS[2], delta)
redis.call('SADD', KEYS[3], ARGV[2])

return {1, next}
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// allocationKeyName length-prefixes the product id so no (product, holder)
// pair can share a key with another.
func allocationKeyName(productID, holderID string) string {
	return allocationKeyPrefix + strconv.Itoa(len(productID)) + ":" + productID + ":" + holderID
}

func (r *RedisAdapter) GetQuantity(ctx context.Context, productID, holderID string) (int64, error) {
	qty, err := r.client.Get(ctx, allocationKeyName(productID, holderID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return qty, err
}

func (r *RedisAdapter) SumForProduct(ctx context.Context, productID string) (int64, error) {
	total, err := r.client.Get(ctx, totalKeyPrefix+productID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return total, err
}

func (r *RedisAdapter) ListForHolder(ctx context.Context, holderID string) ([]domain.Allocation, error) {
	productIDs, err := r.client.SMembers(ctx, holderIndexKeyPrefix+holderID).Result()
	if err != nil {
		return nil, fmt.Errorf("read holder index: %w", err)
	}
	if len(productIDs) == 0 {
		return nil, nil
	}
	sort.Strings(productIDs)

	keys := make([]string, len(productIDs))
	for i, p := range productIDs {
		keys[i] = allocationKeyName(p, holderID)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read allocations: %w", err)
	}

	out := make([]domain.Allocation, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		qty, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse allocation %s: %w", keys[i], err)
		}
		out = append(out, domain.Allocation{
			ProductID: productIDs[i],
			HolderID:  holderID,
			Quantity:  qty,
			Active:    true,
		})
	}
	return out, nil
}

func (r *RedisAdapter) ApplyDelta(ctx context.Context, productID, holderID string, delta int64) (int64, error) {
	keys := []string{
		allocationKeyName(productID, holderID),
		totalKeyPrefix + productID,
		holderIndexKeyPrefix + holderID,
	}

	result, err := applyDeltaScript.Run(ctx, r.client, keys, delta, productID).Int64Slice()
	if err != nil {
		return 0, err
	}
	if len(result) != 2 {
		return 0, fmt.Errorf("unexpected script reply %v", result)
	}

	if result[0] == 0 {
		return result[1], fmt.Errorf("%w: holder %s has %d of %s, change %d",
			domain.ErrInsufficientStock, holderID, result[1], productID, delta)
	}
	return result[1], nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

// ReportIntegrityRisk appends the incident to the reconciliation stream.
func (r *RedisAdapter) ReportIntegrityRisk(ctx context.Context, incident domain.IntegrityIncident) error {
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: IntegrityStream,
		Values: map[string]any{
			"operation":  string(incident.Operation),
			"product_id": incident.ProductID,
			"holder_id":  incident.HolderID,
			"quantity":   incident.Quantity,
			"cause":      incident.Cause,
			"rollback":   incident.Rollback,
			"at":         time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}
