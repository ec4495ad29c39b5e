package auth

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/inflect/internal/model"
)

func TestLocalNotifier_SubscribeAndUnsubscribe(t *testing.T) {
	n := NewLocalNotifier()

	var got []model.SessionEvent
	unsubscribe := n.Subscribe(func(c model.SessionChange) {
		got = append(got, c.Event)
	})

	n.Publish(context.Background(), model.SessionChange{Event: model.EventSignedIn})
	unsubscribe()
	unsubscribe() // 2回目の解除は何もしない
	n.Publish(context.Background(), model.SessionChange{Event: model.EventSignedOut})

	if len(got) != 1 || got[0] != model.EventSignedIn {
		t.Errorf("got %v, want [SIGNED_IN]", got)
	}
	if n.Len() != 0 {
		t.Errorf("Len() = %d, want 0", n.Len())
	}
}

func TestLocalNotifier_ListenerMayUnsubscribeItself(t *testing.T) {
	n := NewLocalNotifier()

	calls := 0
	var unsubscribe func()
	unsubscribe = n.Subscribe(func(model.SessionChange) {
		calls++
		unsubscribe()
	})

	n.Publish(context.Background(), model.SessionChange{Event: model.EventSignedIn})
	n.Publish(context.Background(), model.SessionChange{Event: model.EventSignedIn})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func newRedisNotifierTest(t *testing.T) (*RedisNotifier, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewRedisNotifier(rdb, "", logger), rdb
}

func TestRedisNotifier_DeliversPublishedChanges(t *testing.T) {
	n, _ := newRedisNotifierTest(t)

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Close()

	received := make(chan model.SessionChange, 1)
	unsubscribe := n.Subscribe(func(c model.SessionChange) {
		received <- c
	})
	defer unsubscribe()

	want := model.SessionChange{Event: model.EventUserUpdated, UserID: "user-1", At: time.Now().UTC().Truncate(time.Second)}
	if err := n.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		if got.Event != want.Event || got.UserID != want.UserID || !got.At.Equal(want.At) {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session change")
	}
}

func TestRedisNotifier_IgnoresMalformedPayload(t *testing.T) {
	n, rdb := newRedisNotifierTest(t)

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Close()

	received := make(chan model.SessionChange, 2)
	n.Subscribe(func(c model.SessionChange) { received <- c })

	rdb.Publish(context.Background(), DefaultNotifyChannel, "{not json")
	n.Publish(context.Background(), model.SessionChange{Event: model.EventSignedOut, UserID: "u"})

	select {
	case got := <-received:
		if got.Event != model.EventSignedOut {
			t.Errorf("first delivered event = %q, want SIGNED_OUT", got.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session change")
	}
}

func TestRedisNotifier_CloseIsIdempotent(t *testing.T) {
	n, _ := newRedisNotifierTest(t)

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
