package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SweepLocker 单笔归集期间的排他锁。
// 两轮编排同时跑到同一笔 deposit 时，只有拿到锁的那轮可以发归集交易，
// 没拿到的直接跳过这笔 (下一轮还会捞到它)。
type SweepLocker interface {
	// Acquire 非阻塞抢锁。ok 为 true 时必须调用 release 释放
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Lua 脚本：只有持有者才能删锁，防止误删别人的锁
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// RedisSweepLocker 基于 SETNX + token 的分布式实现，多副本部署时用
type RedisSweepLocker struct {
	client *redis.Client
}

func NewRedisSweepLocker(client *redis.Client) *RedisSweepLocker {
	return &RedisSweepLocker{client: client}
}

var _ SweepLocker = (*RedisSweepLocker)(nil)

func (l *RedisSweepLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	// 每次抢锁生成唯一 token，谁加锁谁解锁
	token := uuid.NewString()

	success, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !success {
		return nil, false, nil
	}

	release := func() {
		// TTL 是兜底，正常路径主动释放
		_, _ = l.client.Eval(context.Background(), unlockScript, []string{key}, token).Result()
	}
	return release, true, nil
}

// MemorySweepLocker 进程内实现，单副本部署 (没配 redis) 和测试用
type MemorySweepLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemorySweepLocker() *MemorySweepLocker {
	return &MemorySweepLocker{held: make(map[string]struct{})}
}

var _ SweepLocker = (*MemorySweepLocker)(nil)

func (l *MemorySweepLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	release := func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}
	return release, true, nil
}
