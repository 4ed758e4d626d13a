package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChannel carries JSON-encoded PayEvents for other instances.
const RedisChannel = "satsfox:pay-events"

// RedisPublisher returns a listener that republishes events on channel.
func RedisPublisher(client *redis.Client, channel string) Listener {
	return func(e PayEvent) error {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Publish(ctx, channel, payload).Err()
	}
}
