package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// ErrRentalBusy means another operation currently holds the rental's lock.
var ErrRentalBusy = errors.New("rental is being modified by another operation")

const (
	rentalLockTTL   = 30 * time.Second
	lockRetryDelay  = 50 * time.Millisecond
	lockMaxAttempts = 20
	webhookDedupTTL = 48 * time.Hour
)

// InitRedis initializes the Redis client
func InitRedis() error {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://redis:6379" // Default Redis address for Docker
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	RedisClient = redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	_, err = RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return nil
}

// AcquireRentalLock serialises state-changing operations on one rental.
// Returns a release token; the database row lock is the hard guarantee, this
// keeps concurrent requests from even entering the transaction.
func AcquireRentalLock(ctx context.Context, rentalID uint) (string, error) {
	key := fmt.Sprintf("rental:lock:%d", rentalID)
	token := uuid.NewString()

	for attempt := 0; attempt < lockMaxAttempts; attempt++ {
		ok, err := RedisClient.SetNX(ctx, key, token, rentalLockTTL).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return "", ErrRentalBusy
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ReleaseRentalLock releases the lock only if the token still owns it.
func ReleaseRentalLock(ctx context.Context, rentalID uint, token string) {
	key := fmt.Sprintf("rental:lock:%d", rentalID)
	releaseScript.Run(ctx, RedisClient, []string{key}, token)
}

// MarkWebhookSeen records a gateway transaction as applied to a purse; the
// first caller gets true. Fast path in front of the database idempotency
// check, not a replacement for it.
func MarkWebhookSeen(ctx context.Context, merchantRef, txnID string) (bool, error) {
	key := fmt.Sprintf("webhook:seen:%s:%s", merchantRef, txnID)
	return RedisClient.SetNX(ctx, key, time.Now().Unix(), webhookDedupTTL).Result()
}

// ClearWebhookSeen backs out the dedup marker when applying the webhook
// failed and a redelivery should be allowed to retry.
func ClearWebhookSeen(ctx context.Context, merchantRef, txnID string) {
	key := fmt.Sprintf("webhook:seen:%s:%s", merchantRef, txnID)
	RedisClient.Del(ctx, key)
}

// CacheRentalStatus mirrors the latest rental status for cheap polling reads.
func CacheRentalStatus(ctx context.Context, rentalID uint, status string) error {
	key := fmt.Sprintf("rental:status:%d", rentalID)
	return RedisClient.Set(ctx, key, status, time.Hour).Err()
}

// GetCachedRentalStatus returns the mirrored status, or "" on miss.
func GetCachedRentalStatus(ctx context.Context, rentalID uint) string {
	key := fmt.Sprintf("rental:status:%d", rentalID)
	status, err := RedisClient.Get(ctx, key).Result()
	if err != nil {
		return ""
	}
	return status
}
