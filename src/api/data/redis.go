package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	noncePrefix  = "nonce:"
	nonceTTL     = 5 * time.Minute
	StreamEvents = "market.events"
	streamMaxLen = 10000
)

func ConnectRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return redis.NewClient(opt), nil
}

func nonceKey(addr string) string {
	return noncePrefix + strings.ToLower(addr)
}

// SetNonce stores the login challenge for addr for five minutes.
func SetNonce(ctx context.Context, rdb *redis.Client, addr, nonce string) error {
	return rdb.Set(ctx, nonceKey(addr), nonce, nonceTTL).Err()
}

// GetAndDelNonce consumes the challenge; a second call returns redis.Nil.
func GetAndDelNonce(ctx context.Context, rdb *redis.Client, addr string) (string, error) {
	return rdb.GetDel(ctx, nonceKey(addr)).Result()
}

// Event is a domain event appended to the market stream.
type Event struct {
	Name    string
	UserID  uint64
	Payload any
}

// PublishEvent appends ev to the capped events stream.
func PublishEvent(ctx context.Context, rdb *redis.Client, ev Event) error {
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamEvents,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event":   ev.Name,
			"user_id": ev.UserID,
			"payload": string(body),
			"time":    time.Now().Unix(),
		},
	}).Err()
}
