package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every replica using the same Redis.
type Redis struct {
	Client *redis.Client
	Prefix string
	Logger *slog.Logger
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		Client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		Prefix: "riskscan:lock:",
	}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.Client.Close() }

// Acquire sets key with NX and a ttl. The lock expires on its own if the
// holder dies before calling release.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	k := r.Prefix + key
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, risk.ErrTrainingInProgress
	}
	return func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), r.Client, []string{k}, token).Err(); err != nil {
			r.logger().Warn("release lock", "key", k, "error", err)
		}
	}, nil
}

func (r *Redis) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
