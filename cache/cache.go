package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/sooomo/tally"
)

var (
	ErrMiss = errors.New("cache miss")
)

// Store 按负载摘要缓存计数结果
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// 连接并 ping，失败时关闭客户端
func Dial(ctx context.Context, opt *redis.Options, prefix string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewStore(client, prefix, ttl), nil
}

func (s *Store) Client() *redis.Client { return s.client }

func (s *Store) key(digest string) string {
	return s.prefix + digest
}

func (s *Store) GetTally(ctx context.Context, digest string) (tally.Tally, error) {
	var t tally.Tally
	jsonStr, err := s.client.Get(ctx, s.key(digest)).Result()
	if err == redis.Nil {
		return t, ErrMiss
	} else if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &t); err != nil {
		return t, fmt.Errorf("decode cached tally: %w", err)
	}
	return t, nil
}

func (s *Store) SetTally(ctx context.Context, digest string, t tally.Tally) error {
	jsonStr, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(digest), string(jsonStr), s.ttl).Err()
}

// MarkNonce 首次出现的 nonce 返回 true，ttl 内重复出现返回 false
func (s *Store) MarkNonce(ctx context.Context, nonce string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+"nonce:"+nonce, 1, s.ttl).Result()
}

func (s *Store) Del(ctx context.Context, digests ...string) (int64, error) {
	keys := make([]string, len(digests))
	for i, d := range digests {
		keys[i] = s.key(d)
	}
	return s.client.Del(ctx, keys...).Result()
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil
	return client.Close()
}
