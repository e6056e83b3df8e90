package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/repository"
)

// Locker 按 key 串行执行，保证同一命名空间只有一个写者
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// NamespaceKey 命名空间锁 key
func NamespaceKey(namespace string) string {
	return "ns:" + namespace
}

// WithConversationLock 在会话所属命名空间的锁内执行 fn
// 与批次摄取共用同一把锁，fn 拿到的是加锁后重新读取的会话
func WithConversationLock(ctx context.Context, locker Locker, store repository.Store, id uint,
	fn func(ctx context.Context, conv *model.Conversation) error) error {
	conv, err := store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	// client_id 不会变化，可以先读后锁
	return locker.WithLock(ctx, NamespaceKey(conv.ClientID), func(ctx context.Context) error {
		conv, err := store.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, conv)
	})
}

// ========== 进程内锁 ==========

// LocalLocker 进程内的按 key 互斥锁，单实例部署时使用
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// WithLock 获取 key 对应的锁后执行 fn，等待期间响应 ctx 取消
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := l.acquireRef(key)
	defer l.releaseRef(key)

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock.ch }()

	return fn(ctx)
}

func (l *LocalLocker) acquireRef(key string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (l *LocalLocker) releaseRef(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock := l.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// ========== Redis 分布式锁 ==========

const lockRetryDelay = 200 * time.Millisecond

// RedisLocker 基于 redsync 的分布式锁，多实例部署时使用
// 持锁期间每 ttl/2 续期一次
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	ttl    time.Duration
}

// NewRedisLocker 创建分布式锁
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: prefix,
		ttl:    ttl,
	}
}

// WithLock 获取分布式锁后执行 fn
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	name := l.prefix + ":lock:" + key
	// 最多等待 10 个 ttl
	mutex := l.rs.NewMutex(name,
		redsync.WithExpiry(l.ttl),
		redsync.WithRetryDelay(lockRetryDelay),
		redsync.WithTries(int(10*l.ttl/lockRetryDelay)),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	extendCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(extendCtx, mutex)
	}()

	defer func() {
		stop()
		wg.Wait()
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			log.Error().Err(err).Str("lock", name).Msg("failed to unlock mutex")
		}
	}()

	return fn(ctx)
}

func (l *RedisLocker) keepAlive(ctx context.Context, mutex *redsync.Mutex) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := mutex.ExtendContext(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("lock", mutex.Name()).Msg("failed to extend mutex")
			}
		}
	}
}
