package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sumire/fleetdesk/internal/domain"
)

const threadIndexKey = "fleetdesk:threads"

// RedisMessageStore keeps each thread as a Redis list. RPUSH is atomic, so
// the list index is the post order and doubles as the sequence number.
type RedisMessageStore struct {
	client *redis.Client
	prefix string
}

// NewRedisMessageStore creates a RedisMessageStore on top of client.
func NewRedisMessageStore(client *redis.Client) *RedisMessageStore {
	return &RedisMessageStore{client: client, prefix: "fleetdesk:messages:"}
}

type storedMessage struct {
	ID        string        `json:"id"`
	Sender    domain.Sender `json:"sender"`
	SenderID  string        `json:"sender_id"`
	Text      string        `json:"text"`
	Timestamp int64         `json:"ts"`
}

func (s *RedisMessageStore) Append(ctx context.Context, m domain.Message) (domain.Message, error) {
	payload, err := json.Marshal(storedMessage{
		ID:        m.ID,
		Sender:    m.Sender,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Timestamp: m.Timestamp.UnixNano(),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}

	var push *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		push = p.RPush(ctx, s.prefix+m.ThreadKey, payload)
		p.SAdd(ctx, threadIndexKey, m.ThreadKey)
		return nil
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message to %s: %w", m.ThreadKey, err)
	}

	m.Seq = push.Val()
	return m, nil
}

func (s *RedisMessageStore) List(ctx context.Context, threadKey string, after int64) ([]domain.Message, error) {
	if after < 0 {
		after = 0
	}
	raw, err := s.client.LRange(ctx, s.prefix+threadKey, after, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read thread %s: %w", threadKey, err)
	}

	out := make([]domain.Message, 0, len(raw))
	for i, item := range raw {
		var sm storedMessage
		if err := json.Unmarshal([]byte(item), &sm); err != nil {
			return nil, fmt.Errorf("decode message %d of %s: %w", after+int64(i)+1, threadKey, err)
		}
		out = append(out, domain.Message{
			ID:        sm.ID,
			ThreadKey: threadKey,
			Seq:       after + int64(i) + 1,
			Sender:    sm.Sender,
			SenderID:  sm.SenderID,
			Text:      sm.Text,
			Timestamp: time.Unix(0, sm.Timestamp).UTC(),
		})
	}
	return out, nil
}

func (s *RedisMessageStore) Threads(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, threadIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
