package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/inflect/internal/model"
)

// DefaultNotifyChannel はセッション変更通知に使うRedisチャンネル名。
const DefaultNotifyChannel = "inflect:session-changes"

// RedisNotifier はRedis Pub/Subを介して複数プロセスにセッション変更を配信する。
// Publish はRedisへ送信し、Start で購読したメッセージをローカルのリスナーに配る。
type RedisNotifier struct {
	client  *redis.Client
	channel string
	local   *LocalNotifier
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisNotifier はRedisNotifierを生成する。
func NewRedisNotifier(client *redis.Client, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		local:   NewLocalNotifier(),
		logger:  logger,
	}
}

// Start はチャンネルを購読し、受信ループをバックグラウンドで開始する。
// 購読の確立を待ってから返るため、Start の後に Publish した通知は取りこぼさない。
func (n *RedisNotifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pubsub != nil {
		return nil
	}

	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe %s: %w", n.channel, err)
	}

	n.pubsub = pubsub
	n.done = make(chan struct{})
	go n.loop(pubsub.Channel(), n.done)
	return nil
}

func (n *RedisNotifier) loop(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		var change model.SessionChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			n.logger.Warn("invalid session change payload",
				slog.String("channel", msg.Channel),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.local.Publish(context.Background(), change)
	}
}

// Publish は変更通知をRedisチャンネルへ送信する。
func (n *RedisNotifier) Publish(ctx context.Context, change model.SessionChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode session change: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish session change: %w", err)
	}
	return nil
}

// Subscribe はローカルのリスナーを登録する。
func (n *RedisNotifier) Subscribe(fn Listener) func() {
	return n.local.Subscribe(fn)
}

// Close は購読を終了し、受信ループの終了を待つ。
func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	pubsub, done := n.pubsub, n.done
	n.pubsub, n.done = nil, nil
	n.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

var _ Notifier = (*RedisNotifier)(nil)
