package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
)

// appendTrimScript atomically pushes the given JSON-encoded messages onto
// the list and trims it to the last maxMessages entries in one round trip,
// the "list-push-with-trim pipeline" spec.md §4.6 calls for.
const appendTrimScript = `
for i = 2, #ARGV do
  redis.call('RPUSH', KEYS[1], ARGV[i])
end
local maxMessages = tonumber(ARGV[1])
if maxMessages > 0 then
  redis.call('LTRIM', KEYS[1], -maxMessages, -1)
end
return redis.call('LLEN', KEYS[1])
`

// RedisBackend is the key-value Backend of spec.md §4.6. Messages are
// stored as a Redis list of JSON-encoded entries; metadata as a Redis hash
// of JSON-encoded field values.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisOptions configures a RedisBackend.
type RedisOptions struct {
	Client    *redis.Client
	KeyPrefix string
	// TTL, if non-zero, is applied to every session's keys after each write.
	TTL time.Duration
}

// NewRedisBackend builds a RedisBackend over an existing client.
func NewRedisBackend(opts RedisOptions) (*RedisBackend, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("session: redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "session"
	}
	return &RedisBackend{client: opts.Client, keyPrefix: prefix, ttl: opts.TTL}, nil
}

func (b *RedisBackend) Kind() string       { return "redis" }
func (b *RedisBackend) TTL() time.Duration { return b.ttl }

func (b *RedisBackend) messagesKey(sessionID string) string { return b.keyPrefix + ":" + sessionID + ":messages" }
func (b *RedisBackend) metadataKey(sessionID string) string { return b.keyPrefix + ":" + sessionID + ":metadata" }

func (b *RedisBackend) LoadMessages(ctx context.Context, sessionID string) ([]message.Message, error) {
	raw, err := b.client.LRange(ctx, b.messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("session: redis LRANGE: %w", err)
	}
	out := make([]message.Message, 0, len(raw))
	for _, s := range raw {
		var m message.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("session: decoding stored message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *RedisBackend) AppendMessages(ctx context.Context, sessionID string, msgs []message.Message, maxMessages int) error {
	args := make([]any, 0, len(msgs)+1)
	args = append(args, maxMessages)
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("session: encoding message: %w", err)
		}
		args = append(args, string(raw))
	}
	if err := b.client.Eval(ctx, appendTrimScript, []string{b.messagesKey(sessionID)}, args...).Err(); err != nil {
		return fmt.Errorf("session: redis append+trim: %w", err)
	}
	return b.applyTTL(ctx, b.messagesKey(sessionID))
}

func (b *RedisBackend) ReplaceMessages(ctx context.Context, sessionID string, msgs []message.Message) error {
	key := b.messagesKey(sessionID)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		for _, m := range msgs {
			raw, err := json.Marshal(m)
			if err != nil {
				return err
			}
			pipe.RPush(ctx, key, string(raw))
		}
		if b.ttl > 0 {
			pipe.Expire(ctx, key, b.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis replace: %w", err)
	}
	return nil
}

func (b *RedisBackend) ClearMessages(ctx context.Context, sessionID string) error {
	if err := b.client.Del(ctx, b.messagesKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: redis DEL: %w", err)
	}
	return nil
}

func (b *RedisBackend) LoadMetadata(ctx context.Context, sessionID string) (Metadata, error) {
	raw, err := b.client.HGetAll(ctx, b.metadataKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis HGETALL: %w", err)
	}
	out := Metadata{}
	for k, v := range raw {
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			continue
		}
		out[k] = val
	}
	return out, nil
}

func (b *RedisBackend) UpdateMetadata(ctx context.Context, sessionID string, patch Metadata) error {
	if len(patch) == 0 {
		return nil
	}
	fields := make(map[string]any, len(patch))
	for k, v := range patch {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("session: encoding metadata field %q: %w", k, err)
		}
		fields[k] = string(raw)
	}
	if err := b.client.HSet(ctx, b.metadataKey(sessionID), fields).Err(); err != nil {
		return fmt.Errorf("session: redis HSET: %w", err)
	}
	return b.applyTTL(ctx, b.metadataKey(sessionID))
}

func (b *RedisBackend) applyTTL(ctx context.Context, key string) error {
	if b.ttl <= 0 {
		return nil
	}
	if err := b.client.Expire(ctx, key, b.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis EXPIRE: %w", err)
	}
	return nil
}
