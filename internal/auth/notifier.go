package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/inflect/internal/model"
)

// Listener はセッション変更通知を受け取る関数。
type Listener func(change model.SessionChange)

// Notifier はセッション変更通知の配信を抽象化する。
type Notifier interface {
	// Publish は変更通知を配信する。
	Publish(ctx context.Context, change model.SessionChange) error
	// Subscribe はリスナーを登録し、登録解除用の関数を返す。
	// 解除関数は何度呼んでもよい。
	Subscribe(fn Listener) (unsubscribe func())
}

// LocalNotifier はプロセス内でリスナーへ同期的に配信するNotifier。
type LocalNotifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewLocalNotifier はLocalNotifierを生成する。
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[int]Listener)}
}

// Publish は登録済みの全リスナーに通知する。
// リスナーはロックの外で呼ばれるため、リスナー内で購読解除してもよい。
func (n *LocalNotifier) Publish(_ context.Context, change model.SessionChange) error {
	n.mu.RLock()
	targets := make([]Listener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		targets = append(targets, fn)
	}
	n.mu.RUnlock()

	for _, fn := range targets {
		fn(change)
	}
	return nil
}

// Subscribe はリスナーを登録する。
func (n *LocalNotifier) Subscribe(fn Listener) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Len は登録中のリスナー数を返す。
func (n *LocalNotifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

var _ Notifier = (*LocalNotifier)(nil)
