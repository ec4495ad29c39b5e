package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

// fakeSleeper は待機せずに待機時間を記録する。
type fakeSleeper struct {
	mu      sync.Mutex
	slept   []time.Duration
	onSleep func(n int)
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	n := len(s.slept)
	s.mu.Unlock()

	if s.onSleep != nil {
		s.onSleep(n)
	}
	return ctx.Err()
}

func (s *fakeSleeper) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.slept {
		sum += d
	}
	return sum
}

func (s *fakeSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slept)
}

// sessionAfter はN回目の呼び出しからセッションを返すSessionSource。
// n が0以下の場合はセッションを返さない。
type sessionAfter struct {
	n     int
	calls int
	errs  map[int]error
}

func (s *sessionAfter) GetSession(context.Context) (*model.Session, error) {
	s.calls++
	if err, ok := s.errs[s.calls]; ok {
		return nil, err
	}
	if s.n > 0 && s.calls >= s.n {
		return &model.Session{ID: "sess-1", UserID: "user-1", Email: "user@example.com"}, nil
	}
	return nil, nil
}

// recordingNavigator は遷移先を記録する。
type recordingNavigator struct {
	routes []string
}

func (n *recordingNavigator) Replace(route string) {
	n.routes = append(n.routes, route)
}

type recordedOutcome struct {
	state    string
	attempts int
}

type fakeRecorder struct {
	callbacks []recordedOutcome
	lookups   []bool
}

func (r *fakeRecorder) RecordCallbackOutcome(state string, attempts int) {
	r.callbacks = append(r.callbacks, recordedOutcome{state, attempts})
}

func (r *fakeRecorder) RecordProfileLookup(found bool, _ int) {
	r.lookups = append(r.lookups, found)
}
