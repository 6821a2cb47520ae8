package counter

import (
	"context"

	"github.com/solutionargentrapide/paygate/internal/pkg/cache"
)

const (
	receivedKey  = "webhook:counters:received"
	processedKey = "webhook:counters:processed"
	rejectedKey  = "webhook:counters:rejected"
)

// AddReceived increments the received counter for an event type in Redis
func AddReceived(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, receivedKey, eventType, 1).Err()
}

// AddProcessed increments the processed counter for an event type in Redis
func AddProcessed(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, processedKey, eventType, 1).Err()
}

// AddRejected increments the rejected counter for an event type in Redis
func AddRejected(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, rejectedKey, eventType, 1).Err()
}

// Snapshot returns all ingest counters grouped by outcome.
func Snapshot() (map[string]map[string]string, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	snapshot := make(map[string]map[string]string, 3)
	for name, key := range map[string]string{
		"received":  receivedKey,
		"processed": processedKey,
		"rejected":  rejectedKey,
	} {
		data, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		snapshot[name] = data
	}
	return snapshot, nil
}
