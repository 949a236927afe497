package ledger

import (
	"context"
	"sync"
)

// Locker 按账户加互斥锁
// Lock 返回的 unlock 必须在所有退出路径上调用
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

// KeyedMutex 进程内按用户维度的互斥锁
// 不同用户互不阻塞；没有等待者时释放对应的 entry
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, userID int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[userID]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[userID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(userID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(userID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(userID int64, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, userID)
	}
}
