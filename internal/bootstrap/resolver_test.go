package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

func TestResolve_ErrorParam_RedirectsToLoginWithoutPolling(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  string
	}{
		{
			name:  "error only",
			query: url.Values{"error": {"access_denied"}},
			want:  "/login?error=access_denied",
		},
		{
			name:  "error with description",
			query: url.Values{"error": {"server_error"}, "error_description": {"Database error saving new user"}},
			want:  "/login?error=server_error&error_description=Database+error+saving+new+user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &sessionAfter{n: 1}
			sleeper := &fakeSleeper{}
			nav := &recordingNavigator{}

			out := NewCallbackResolver(sleeper, nil).Resolve(context.Background(), tt.query, sessions, nav)

			if out.State != StateFailed {
				t.Errorf("state = %s, want %s", out.State, StateFailed)
			}
			if sessions.calls != 0 {
				t.Errorf("GetSession calls = %d, want 0", sessions.calls)
			}
			if sleeper.count() != 0 {
				t.Errorf("sleeps = %d, want 0", sleeper.count())
			}
			if len(nav.routes) != 1 || nav.routes[0] != tt.want {
				t.Errorf("routes = %v, want [%s]", nav.routes, tt.want)
			}
		})
	}
}

func TestResolve_SessionWithinBound_NavigatesToMyPageOnce(t *testing.T) {
	for n := 1; n <= SessionPollPolicy.Attempts; n++ {
		t.Run(fmt.Sprintf("session on attempt %d", n), func(t *testing.T) {
			sessions := &sessionAfter{n: n}
			sleeper := &fakeSleeper{}
			nav := &recordingNavigator{}

			out := NewCallbackResolver(sleeper, nil).Resolve(context.Background(), url.Values{}, sessions, nav)

			if out.State != StateResolved {
				t.Fatalf("state = %s, want %s", out.State, StateResolved)
			}
			if sessions.calls != n {
				t.Errorf("GetSession calls = %d, want %d", sessions.calls, n)
			}
			if out.Attempts != n {
				t.Errorf("attempts = %d, want %d", out.Attempts, n)
			}
			if sleeper.count() != n-1 {
				t.Errorf("sleeps = %d, want %d", sleeper.count(), n-1)
			}
			if len(nav.routes) != 1 || nav.routes[0] != "/mypage" {
				t.Errorf("routes = %v, want [/mypage]", nav.routes)
			}
		})
	}
}

func TestResolve_NoSession_FailsWithGenericError(t *testing.T) {
	sessions := &sessionAfter{}
	sleeper := &fakeSleeper{}
	nav := &recordingNavigator{}
	recorder := &fakeRecorder{}

	out := NewCallbackResolver(sleeper, recorder).Resolve(context.Background(), url.Values{}, sessions, nav)

	if out.State != StateFailed {
		t.Errorf("state = %s, want %s", out.State, StateFailed)
	}
	if sessions.calls != 10 {
		t.Errorf("GetSession calls = %d, want 10", sessions.calls)
	}
	if sleeper.total() != 2500*time.Millisecond {
		t.Errorf("total wait = %v, want 2.5s", sleeper.total())
	}
	if len(nav.routes) != 1 || nav.routes[0] != "/login?error=oauth" {
		t.Errorf("routes = %v, want [/login?error=oauth]", nav.routes)
	}
	if len(recorder.callbacks) != 1 || recorder.callbacks[0] != (recordedOutcome{"FAILED", 10}) {
		t.Errorf("recorded = %+v", recorder.callbacks)
	}
}

func TestResolve_ProviderErrorsAreRetried(t *testing.T) {
	sessions := &sessionAfter{n: 3, errs: map[int]error{1: errors.New("network down"), 2: errors.New("network down")}}
	nav := &recordingNavigator{}

	out := NewCallbackResolver(&fakeSleeper{}, nil).Resolve(context.Background(), url.Values{}, sessions, nav)

	if out.State != StateResolved {
		t.Errorf("state = %s, want %s", out.State, StateResolved)
	}
	if len(nav.routes) != 1 || nav.routes[0] != "/mypage" {
		t.Errorf("routes = %v, want [/mypage]", nav.routes)
	}
}

func TestResolve_CanceledMidPoll_NeverNavigates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := &sessionAfter{n: 5}
	sleeper := &fakeSleeper{onSleep: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	nav := &recordingNavigator{}
	recorder := &fakeRecorder{}

	out := NewCallbackResolver(sleeper, recorder).Resolve(ctx, url.Values{}, sessions, nav)

	if out.State != StateCanceled {
		t.Errorf("state = %s, want %s", out.State, StateCanceled)
	}
	if len(nav.routes) != 0 {
		t.Errorf("routes = %v, want none", nav.routes)
	}
	if sessions.calls != 2 {
		t.Errorf("GetSession calls = %d, want 2", sessions.calls)
	}
	if len(recorder.callbacks) != 1 || recorder.callbacks[0].state != "CANCELED" {
		t.Errorf("recorded = %+v", recorder.callbacks)
	}
}

func TestResolve_CanceledWhileFetching_NeverNavigates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// セッション取得中に破棄されると、取得できた結果も使わない
	sessions := SessionSourceFunc(func(context.Context) (*model.Session, error) {
		cancel()
		return &model.Session{ID: "s", UserID: "u"}, nil
	})
	nav := &recordingNavigator{}

	out := NewCallbackResolver(&fakeSleeper{}, nil).Resolve(ctx, url.Values{}, sessions, nav)

	if out.State != StateCanceled {
		t.Errorf("state = %s, want %s", out.State, StateCanceled)
	}
	if len(nav.routes) != 0 {
		t.Errorf("routes = %v, want none", nav.routes)
	}
}

func TestResolve_CanceledBeforeErrorRedirect_NeverNavigates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	nav := &recordingNavigator{}
	out := NewCallbackResolver(&fakeSleeper{}, nil).Resolve(ctx, url.Values{"error": {"access_denied"}}, &sessionAfter{}, nav)

	if out.State != StateCanceled || len(nav.routes) != 0 {
		t.Errorf("out = %+v, routes = %v", out, nav.routes)
	}
}

func TestResolve_RealTimer_WaitsFullBound(t *testing.T) {
	resolver := NewCallbackResolver(nil, nil)
	resolver.Policy = RetryPolicy{Attempts: 3, Interval: 20 * time.Millisecond}
	nav := &recordingNavigator{}

	start := time.Now()
	out := resolver.Resolve(context.Background(), url.Values{}, &sessionAfter{}, nav)
	elapsed := time.Since(start)

	if out.State != StateFailed {
		t.Errorf("state = %s, want %s", out.State, StateFailed)
	}
	if elapsed < resolver.Policy.MaxWait() {
		t.Errorf("elapsed = %v, want >= %v", elapsed, resolver.Policy.MaxWait())
	}
}
