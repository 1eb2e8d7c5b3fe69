// redis.go implements the Store contract on Redis. Conditional creation maps
// to SET NX, conditional updates to an optimistic WATCH/MULTI transaction,
// and counter increments to a small Lua script so the create-with-expiry
// behaviour is a single round trip.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxUpdateAttempts bounds the optimistic retry loop in Update. A WATCH
// abort means another writer touched the key between our read and our write;
// the predicate is re-evaluated from scratch on every attempt, so retrying
// never weakens the conditional semantics.
const maxUpdateAttempts = 5

// incrScript increments a counter and stamps an absolute expiry only when
// this increment created the key (new value == increment amount). Later
// increments leave the TTL untouched, so a window counter expires relative
// to its window start, not its last use.
var incrScript = redis.NewScript(`
local v = redis.call("INCRBY", KEYS[1], ARGV[1])
if v == tonumber(ARGV[1]) then
	redis.call("EXPIREAT", KEYS[1], ARGV[2])
end
return v
`)

// RedisStore implements Store and SetStore on a go-redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client. The caller owns the client's
// lifecycle.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping verifies connectivity; used by health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Get returns the value under key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &UnavailableError{Op: "get", Key: key, Err: err}
	}
	return val, nil
}

// PutIfAbsent writes value under key via SET NX.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	ok, err := s.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return &UnavailableError{Op: "putifabsent", Key: key, Err: err}
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// Update runs fn under an optimistic WATCH transaction. If a concurrent
// writer modifies the key between the read and the write, the transaction
// aborts and the whole read-check-write cycle is retried with fresh state,
// so fn always observes the value its write would replace.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	var written []byte

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			current = nil
		} else if err != nil {
			return &UnavailableError{Op: "update", Key: key, Err: err}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		written = next
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		// ErrConditionFailed, caller-defined errors from fn, and wrapped
		// transport failures all pass through untouched.
		return nil, err
	}
	return nil, &UnavailableError{Op: "update", Key: key, Err: errors.New("optimistic retries exhausted")}
}

// IncrBy runs the increment script.
func (s *RedisStore) IncrBy(ctx context.Context, key string, amount int64, expireAt time.Time) (int64, error) {
	val, err := incrScript.Run(ctx, s.client, []string{key}, amount, expireAt.Unix()).Int64()
	if err != nil {
		return 0, &UnavailableError{Op: "incrby", Key: key, Err: err}
	}
	return val, nil
}

// SetAdd adds member to the set under key.
func (s *RedisStore) SetAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return &UnavailableError{Op: "setadd", Key: key, Err: err}
	}
	return nil
}

// SetRemove removes member from the set under key.
func (s *RedisStore) SetRemove(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return &UnavailableError{Op: "setremove", Key: key, Err: err}
	}
	return nil
}

// SetMembers returns every member of the set under key. An absent set is an
// empty slice, not an error.
func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, &UnavailableError{Op: "setmembers", Key: key, Err: err}
	}
	return members, nil
}
