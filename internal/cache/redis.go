package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"opsagent.app/history/internal/model"
)

// Key layout:
//
//	chat:meta:{ownerID}        hash, field = conversation ID, value = JSON summary
//	chat:msgs:{conversationID} list of JSON messages in sequence order
//
// Metadata and message bodies live under separate keys so that listing
// conversations (frequent, cheap) never drags message bodies (infrequent,
// potentially large) across the wire. Each key carries its own TTL.
const (
	metaKeyPrefix = "chat:meta:"
	msgsKeyPrefix = "chat:msgs:"
)

func metaKey(ownerID string) string {
	return metaKeyPrefix + ownerID
}

func msgsKey(conversationID string) string {
	return msgsKeyPrefix + conversationID
}

type Config struct {
	// TTL applied to every entry on write and refreshed on read.
	TTL time.Duration
	// Timeout bounds each cache round-trip so a degraded Redis never stalls
	// the critical path.
	Timeout time.Duration
}

type redisCache struct {
	client *redis.Client
	cfg    Config
}

// NewRedisCache returns a Redis-backed HistoryCache.
func NewRedisCache(client *redis.Client, cfg Config) HistoryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &redisCache{client: client, cfg: cfg}
}

func (r *redisCache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

func (r *redisCache) Available(ctx context.Context) bool {
	if r.client == nil {
		return false
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err() == nil
}

func (r *redisCache) GetList(ctx context.Context, ownerID string) ([]model.ConversationSummary, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	entries, err := r.client.HGetAll(ctx, metaKey(ownerID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading summary hash: %w", err)
	}
	if len(entries) == 0 {
		// An absent hash is a miss; an owner with no conversations simply
		// never gets a hash cached.
		return nil, false, nil
	}

	summaries := make([]model.ConversationSummary, 0, len(entries))
	for field, raw := range entries {
		var sum model.ConversationSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, false, fmt.Errorf("decoding summary %s: %w", field, err)
		}
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastModified.After(summaries[j].LastModified)
	})

	// Refresh-on-read: listing the sidebar keeps an active owner's entry warm.
	r.client.Expire(ctx, metaKey(ownerID), r.cfg.TTL)

	return summaries, true, nil
}

func (r *redisCache) PutList(ctx context.Context, ownerID string, summaries []model.ConversationSummary) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	key := metaKey(ownerID)
	if len(summaries) == 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clearing summary hash: %w", err)
		}
		return nil
	}

	fields := make(map[string]any, len(summaries))
	for _, sum := range summaries {
		raw, err := json.Marshal(sum)
		if err != nil {
			return fmt.Errorf("encoding summary %s: %w", sum.ID, err)
		}
		fields[sum.ID] = raw
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing summary hash: %w", err)
	}
	return nil
}

func (r *redisCache) GetConversation(ctx context.Context, conversationID, ownerID string) (*model.Conversation, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	// The metadata entry under the owner's hash doubles as the ownership
	// check: no entry, no messages served.
	raw, err := r.client.HGet(ctx, metaKey(ownerID), conversationID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading summary entry: %w", err)
	}

	var sum model.ConversationSummary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return nil, false, fmt.Errorf("decoding summary: %w", err)
	}

	items, err := r.client.LRange(ctx, msgsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading message list: %w", err)
	}
	if len(items) == 0 {
		return nil, false, nil
	}

	msgs := make([]model.Message, 0, len(items))
	for _, item := range items {
		var msg model.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, false, fmt.Errorf("decoding message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	r.client.Expire(ctx, metaKey(ownerID), r.cfg.TTL)
	r.client.Expire(ctx, msgsKey(conversationID), r.cfg.TTL)

	return &model.Conversation{
		ID:           conversationID,
		OwnerID:      ownerID,
		OwnerName:    sum.OwnerName,
		Title:        sum.Title,
		Model:        sum.Model,
		CreatedAt:    sum.CreatedAt,
		LastModified: sum.LastModified,
		Messages:     msgs,
	}, true, nil
}

func (r *redisCache) PutMessages(ctx context.Context, conversationID string, msgs []model.Message) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	key := msgsKey(conversationID)
	if len(msgs) == 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clearing message list: %w", err)
		}
		return nil
	}

	values, err := encodeMessages(msgs)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, r.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing message list: %w", err)
	}
	return nil
}

func (r *redisCache) UpsertSummary(ctx context.Context, ownerID string, sum model.ConversationSummary) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	key := metaKey(ownerID)

	// Only update an existing hash. Creating one with a single entry would
	// make the next GetList serve a one-conversation "list" as a hit.
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("checking summary hash: %w", err)
	}
	if exists == 0 {
		return nil
	}

	raw, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encoding summary %s: %w", sum.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// HSET replaces the field, so a stale entry for the same
		// conversation can never survive as a duplicate.
		pipe.HSet(ctx, key, sum.ID, raw)
		pipe.Expire(ctx, key, r.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting summary entry: %w", err)
	}
	return nil
}

func (r *redisCache) AppendMessages(ctx context.Context, conversationID string, msgs []model.Message, startSeq int) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	key := msgsKey(conversationID)

	cached, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("checking message list length: %w", err)
	}
	if cached != int64(startSeq) {
		return false, nil
	}

	values, err := encodeMessages(msgs)
	if err != nil {
		return false, err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, r.cfg.TTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("appending messages: %w", err)
	}
	return true, nil
}

func (r *redisCache) MessageCount(ctx context.Context, conversationID string) (int, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	n, err := r.client.LLen(ctx, msgsKey(conversationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return int(n), nil
}

func (r *redisCache) Invalidate(ctx context.Context, ownerID, conversationID string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, metaKey(ownerID), conversationID)
		pipe.Del(ctx, msgsKey(conversationID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidating conversation: %w", err)
	}
	return nil
}

func encodeMessages(msgs []model.Message) ([]any, error) {
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encoding message %d: %w", msg.Seq, err)
		}
		values = append(values, raw)
	}
	return values, nil
}
