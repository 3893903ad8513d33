package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token ids in redis so a logged-out token
// stops working before its natural expiry. Entries carry a TTL equal to
// the token's remaining lifetime, so the set cleans itself up.
type Denylist struct {
	redisdb *redis.Client
}

type DenylistConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewDenylist(cfg DenylistConfig) *Denylist {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Denylist{redisdb: redisdb}
}

func denylistKey(jti string) string {
	return "auth:revoked:" + jti
}

func (d *Denylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// already expired, nothing to record
		return nil
	}

	return d.redisdb.Set(ctx, denylistKey(jti), 1, ttl).Err()
}

func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.redisdb.Exists(ctx, denylistKey(jti)).Result()

	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Ping checks redis connectivity.
func (d *Denylist) Ping(ctx context.Context) error {
	return d.redisdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (d *Denylist) Close() error {
	return d.redisdb.Close()
}
