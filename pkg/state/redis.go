package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mkarlsen/tenantd/internal/logger"
)

// Redis key layout. Everything transient a tenant owns hangs off its id so
// DeleteTenant can enumerate the keys without a SCAN.
func stateKey(tenantID string) string      { return "tenant:" + tenantID + ":state" }
func sharedKey(tenantID string) string     { return "tenant:" + tenantID + ":shared" }
func queueKey(tenantID, q string) string   { return "tenant:" + tenantID + ":queue:" + q }
func controlKey(tenantID string) string    { return "tenant:" + tenantID + ":control" }
func ackKey(tenantID string) string        { return "tenant:" + tenantID + ":ack" }
func checkpointKey(tenantID string) string { return "tenant:" + tenantID + ":checkpoints" }

const busPrefix = "bus:"

// RedisConfig contains connection settings for the shared state store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr" validate:"required"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`

	// DialTimeout bounds the initial connectivity check.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *RedisConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 2 * time.Second
	}
}

// RedisStore implements Store against a Redis-class shared store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	cfg.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying connection for components that need raw
// primitives (the lock store shares this connection).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) State(ctx context.Context, tenantID string) (map[string]string, error) {
	return s.client.HGetAll(ctx, stateKey(tenantID)).Result()
}

func (s *RedisStore) SetStateFields(ctx context.Context, tenantID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make(map[string]any, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return s.client.HSet(ctx, stateKey(tenantID), args).Err()
}

func (s *RedisStore) ReplaceState(ctx context.Context, tenantID string, fields map[string]string) error {
	key := stateKey(tenantID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		args := make(map[string]any, len(fields))
		for k, v := range fields {
			args[k] = v
		}
		pipe.HSet(ctx, key, args)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) StateField(ctx context.Context, tenantID, field string) (string, bool, error) {
	val, err := s.client.HGet(ctx, stateKey(tenantID), field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) SharedBlob(ctx context.Context, tenantID string) ([]byte, error) {
	val, err := s.client.Get(ctx, sharedKey(tenantID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (s *RedisStore) SetSharedBlob(ctx context.Context, tenantID string, blob []byte) error {
	return s.client.Set(ctx, sharedKey(tenantID), blob, 0).Err()
}

func (s *RedisStore) QueueEntries(ctx context.Context, tenantID, queue string) ([]QueueEntry, error) {
	members, err := s.client.ZRangeWithScores(ctx, queueKey(tenantID, queue), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]QueueEntry, 0, len(members))
	for _, member := range members {
		raw, ok := member.Member.(string)
		if !ok {
			continue
		}
		var entry QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logger.Warn("Skipping malformed queue entry", logger.KeyTenant, tenantID, "queue", queue, logger.KeyError, err.Error())
			continue
		}
		entry.Priority = member.Score
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) ReplaceQueue(ctx context.Context, tenantID, queue string, entries []QueueEntry) error {
	key := queueKey(tenantID, queue)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, key, redis.Z{Score: entry.Priority, Member: string(raw)})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) PushQueue(ctx context.Context, tenantID, queue string, entry QueueEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.ZAdd(ctx, queueKey(tenantID, queue), redis.Z{
		Score:  entry.Priority,
		Member: string(raw),
	}).Err()
}

func (s *RedisStore) QueueLen(ctx context.Context, tenantID, queue string) (int64, error) {
	return s.client.ZCard(ctx, queueKey(tenantID, queue)).Result()
}

func (s *RedisStore) SendControl(ctx context.Context, tenantID string, msg ControlMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, controlKey(tenantID), raw).Err()
}

func (s *RedisStore) SendControlAwaitAck(ctx context.Context, tenantID string, msg ControlMessage, ackType string, timeout time.Duration) error {
	sub := s.client.Subscribe(ctx, ackKey(tenantID))
	defer sub.Close()

	// Force the SUBSCRIBE handshake to complete before publishing the
	// control message, otherwise a fast worker could ack into the void.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to ack channel: %w", err)
	}

	if err := s.SendControl(ctx, tenantID, msg); err != nil {
		return err
	}

	deadline := time.After(timeout)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrAckTimeout
		case m, ok := <-ch:
			if !ok {
				return ErrAckTimeout
			}
			var ack ControlMessage
			if err := json.Unmarshal([]byte(m.Payload), &ack); err != nil {
				logger.Warn("Discarding malformed ack", logger.KeyTenant, tenantID, logger.KeyError, err.Error())
				continue
			}
			if ack.Type == ackType {
				return nil
			}
		}
	}
}

func (s *RedisStore) PushCheckpointRef(ctx context.Context, tenantID, location string, keep int) error {
	key := checkpointKey(tenantID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, location)
	if keep > 0 {
		pipe.LTrim(ctx, key, 0, int64(keep-1))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) CheckpointRefs(ctx context.Context, tenantID string) ([]string, error) {
	return s.client.LRange(ctx, checkpointKey(tenantID), 0, -1).Result()
}

func (s *RedisStore) PublishEvent(ctx context.Context, event string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, busPrefix+event, raw).Err()
}

func (s *RedisStore) SubscribeEvents(ctx context.Context) (EventStream, error) {
	sub := s.client.PSubscribe(ctx, busPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	stream := &redisEventStream{
		sub:    sub,
		events: make(chan Event, 64),
	}
	go stream.pump(ctx)
	return stream, nil
}

type redisEventStream struct {
	sub    *redis.PubSub
	events chan Event
}

func (s *redisEventStream) pump(ctx context.Context) {
	defer close(s.events)
	ch := s.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var payload map[string]any
			if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
				logger.Warn("Discarding malformed bus event", logger.KeyEvent, m.Channel, logger.KeyError, err.Error())
				continue
			}
			event := Event{
				Name:       strings.TrimPrefix(m.Channel, busPrefix),
				Payload:    payload,
				ReceivedAt: time.Now(),
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *redisEventStream) Events() <-chan Event {
	return s.events
}

func (s *redisEventStream) Close() error {
	return s.sub.Close()
}

func (s *RedisStore) DeleteTenant(ctx context.Context, tenantID string) error {
	keys := []string{
		stateKey(tenantID),
		sharedKey(tenantID),
		checkpointKey(tenantID),
	}
	for _, q := range Queues {
		keys = append(keys, queueKey(tenantID, q))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
