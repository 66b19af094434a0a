package state

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/config"
)

// Redis 集合键名
const (
	respondedSetKey = "leads:responded"
	spamSetKey      = "leads:spam"
)

// RedisStore 基于 Redis 集合的状态存储后端。
//
// 适用于多实例共享状态的部署；语义与 FileStore 一致，
// 读失败按"未处理"处理（宁可重复分类，不可丢邮件）。
type RedisStore struct {
	rdb *goredis.Client
	log *zap.Logger
}

// NewRedisStore 创建 Redis 状态存储并验证连通性。
func NewRedisStore(cfg config.RedisConfig, log *zap.Logger) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("state store connected to Redis",
		zap.String("address", cfg.Address),
		zap.Int("db", cfg.DB),
	)

	return &RedisStore{rdb: rdb, log: log}, nil
}

// IsResponded 判断邮件是否已回复过。
func (s *RedisStore) IsResponded(messageID string) bool {
	return s.isMember(respondedSetKey, messageID)
}

// MarkResponded 标记邮件为已回复。
func (s *RedisStore) MarkResponded(messageID string) error {
	if messageID == "" {
		return nil
	}
	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.rdb.SAdd(ctx, respondedSetKey, messageID).Err(); err != nil {
		s.log.Error("failed to persist responded entry", zap.Error(err))
		return err
	}
	return nil
}

// IsSpam 判断邮件或会话标记是否已判定为垃圾。
func (s *RedisStore) IsSpam(id string) bool {
	return s.isMember(spamSetKey, id)
}

// MarkSpam 标记邮件（及可选的会话标记）为垃圾。
func (s *RedisStore) MarkSpam(messageID, threadID string) error {
	if messageID == "" {
		return nil
	}

	members := []interface{}{messageID}
	if threadID != "" {
		members = append(members, SpamThreadKey(threadID))
	}

	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.rdb.SAdd(ctx, spamSetKey, members...).Err(); err != nil {
		s.log.Error("failed to persist spam entries", zap.Error(err))
		return err
	}
	return nil
}

// Counts 返回两个集合的当前大小。
func (s *RedisStore) Counts() (int, int) {
	ctx, cancel := s.opContext()
	defer cancel()

	responded, err := s.rdb.SCard(ctx, respondedSetKey).Result()
	if err != nil {
		responded = 0
	}
	spam, err := s.rdb.SCard(ctx, spamSetKey).Result()
	if err != nil {
		spam = 0
	}
	return int(responded), int(spam)
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) isMember(key, member string) bool {
	if member == "" {
		return false
	}
	ctx, cancel := s.opContext()
	defer cancel()

	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		s.log.Warn("state lookup failed, treating as unprocessed",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (s *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
