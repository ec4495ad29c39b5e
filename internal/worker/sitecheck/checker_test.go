package sitecheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/security"
)

// --- モック定義 ---

type markCall struct {
	id         string
	statusCode int
	title      string
	checkedAt  time.Time
}

type mockResultStore struct {
	mu    sync.Mutex
	calls []markCall
	err   error
}

func (m *mockResultStore) MarkSiteChecked(_ context.Context, id string, statusCode int, title string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, markCall{id, statusCode, title, checkedAt})
	return m.err
}

// mockURLGuard はループバックのテストサーバーへ接続できるよう検証を差し替える。
type mockURLGuard struct {
	validateErr error
}

func (m *mockURLGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockURLGuard) ValidateURL(_ string) error {
	return m.validateErr
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func newTestChecker(store ResultStore, guard security.URLGuard, buf *bytes.Buffer) *Checker {
	c := NewChecker(store, guard, newTestLogger(buf), 5*time.Second, 1024*1024)
	c.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestChecker_Check_RecordsStatusAndTitle(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Acme Inc.</title></head><body>hi</body></html>`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	store := &mockResultStore{}
	checker := newTestChecker(store, &mockURLGuard{}, &buf)

	result, err := checker.Check(context.Background(), &model.PilotApplication{ID: "app-1", Website: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != http.StatusOK || result.Title != "Acme Inc." {
		t.Errorf("result = %+v", result)
	}
	if !result.Reachable() {
		t.Error("200 should be reachable")
	}
	if !strings.HasPrefix(gotUA, "Inflect/") {
		t.Errorf("User-Agent = %q", gotUA)
	}

	if len(store.calls) != 1 {
		t.Fatalf("MarkSiteChecked calls = %d, want 1", len(store.calls))
	}
	call := store.calls[0]
	if call.id != "app-1" || call.statusCode != 200 || call.title != "Acme Inc." {
		t.Errorf("mark call = %+v", call)
	}
	if !call.checkedAt.Equal(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("checkedAt = %v", call.checkedAt)
	}
}

func TestChecker_Check_Non2xxRecordsStatusWithoutTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<title>Not Found</title>`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	store := &mockResultStore{}
	checker := newTestChecker(store, &mockURLGuard{}, &buf)

	result, err := checker.Check(context.Background(), &model.PilotApplication{ID: "app-1", Website: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reachable() {
		t.Error("404 should not be reachable")
	}
	if store.calls[0].statusCode != 404 || store.calls[0].title != "" {
		t.Errorf("mark call = %+v", store.calls[0])
	}
}

func TestChecker_Check_BodyIsLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<head>"+strings.Repeat(" ", 2048)+"<title>too far</title></head>")
	}))
	defer server.Close()

	var buf bytes.Buffer
	store := &mockResultStore{}
	checker := NewChecker(store, &mockURLGuard{}, newTestLogger(&buf), 5*time.Second, 1024)

	result, err := checker.Check(context.Background(), &model.PilotApplication{ID: "app-1", Website: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Title != "" {
		t.Errorf("title beyond size limit should not be read, got %q", result.Title)
	}
}

func TestChecker_Check_BlockedURLIsMarkedWithoutRequest(t *testing.T) {
	requested := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer server.Close()

	var buf bytes.Buffer
	store := &mockResultStore{}
	guard := &mockURLGuard{validateErr: security.ErrBlockedURL}
	checker := newTestChecker(store, guard, &buf)

	result, err := checker.Check(context.Background(), &model.PilotApplication{ID: "app-1", Website: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requested {
		t.Error("blocked URL should not be requested")
	}
	if result.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", result.StatusCode)
	}
	if len(store.calls) != 1 || store.calls[0].statusCode != 0 {
		t.Errorf("blocked URL should be marked as checked with unknown status, got %+v", store.calls)
	}
	if !strings.Contains(buf.String(), "SSRF") {
		t.Errorf("SSRF failure should be logged, got: %s", buf.String())
	}
}

func TestChecker_Check_ConnectionFailureIsMarked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	store := &mockResultStore{}
	checker := newTestChecker(store, &mockURLGuard{}, &buf)

	if _, err := checker.Check(context.Background(), &model.PilotApplication{ID: "app-1", Website: url}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.calls) != 1 || store.calls[0].statusCode != 0 {
		t.Errorf("connection failure should be marked with unknown status, got %+v", store.calls)
	}
}

func TestChecker_Check_StoreErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	var buf bytes.Buffer
	storeErr := errors.New("update failed")
	store := &mockResultStore{err: storeErr}
	checker := newTestChecker(store, &mockURLGuard{}, &buf)

	_, err := checker.Check(context.Background(), &model.PilotApplication{ID: "app-1", Website: server.URL})
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped %v", err, storeErr)
	}
}

func TestChecker_Check_CanceledContextIsNotMarked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	var buf bytes.Buffer
	store := &mockResultStore{}
	checker := newTestChecker(store, &mockURLGuard{}, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := checker.Check(ctx, &model.PilotApplication{ID: "app-1", Website: server.URL})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(store.calls) != 0 {
		t.Error("canceled check should be retried later, not marked")
	}
}
