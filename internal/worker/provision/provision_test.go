package provision

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/inflect/internal/model"
)

// --- モック定義 ---

type mockProfileStore struct {
	listFn   func(ctx context.Context, limit int) ([]*model.User, error)
	createFn func(ctx context.Context, user *model.User) (bool, error)

	listLimit  int
	createdFor []string
}

func (m *mockProfileStore) ListUnprovisionedUsers(ctx context.Context, limit int) ([]*model.User, error) {
	m.listLimit = limit
	return m.listFn(ctx, limit)
}

func (m *mockProfileStore) CreateFromUser(ctx context.Context, user *model.User) (bool, error) {
	m.createdFor = append(m.createdFor, user.ID)
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return true, nil
}

type mockRecorder struct {
	created []int
}

func (m *mockRecorder) RecordProfilesProvisioned(created int) {
	m.created = append(m.created, created)
}

func listOf(ids ...string) func(context.Context, int) ([]*model.User, error) {
	return func(context.Context, int) ([]*model.User, error) {
		users := make([]*model.User, 0, len(ids))
		for _, id := range ids {
			users = append(users, &model.User{ID: id, Email: id + "@example.com"})
		}
		return users, nil
	}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestJob_Run_CreatesProfilesForAllUsers(t *testing.T) {
	var buf bytes.Buffer
	store := &mockProfileStore{listFn: listOf("u1", "u2", "u3")}
	rec := &mockRecorder{}
	job := NewJob(store, newTestLogger(&buf), rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.listLimit != DefaultBatchSize {
		t.Errorf("limit = %d, want %d", store.listLimit, DefaultBatchSize)
	}
	if strings.Join(store.createdFor, ",") != "u1,u2,u3" {
		t.Errorf("createdFor = %v", store.createdFor)
	}
	if len(rec.created) != 1 || rec.created[0] != 3 {
		t.Errorf("recorded = %v, want [3]", rec.created)
	}
}

func TestJob_Run_NoUsers_DoesNothing(t *testing.T) {
	var buf bytes.Buffer
	store := &mockProfileStore{listFn: listOf()}
	rec := &mockRecorder{}
	job := NewJob(store, newTestLogger(&buf), rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.createdFor) != 0 {
		t.Errorf("CreateFromUser should not be called, got %v", store.createdFor)
	}
	if len(rec.created) != 0 {
		t.Errorf("nothing should be recorded, got %v", rec.created)
	}
}

func TestJob_Run_AlreadyProvisionedIsNotCounted(t *testing.T) {
	var buf bytes.Buffer
	store := &mockProfileStore{
		listFn: listOf("u1", "u2"),
		createFn: func(_ context.Context, u *model.User) (bool, error) {
			// 別ワーカーが先に作成済み
			return u.ID != "u1", nil
		},
	}
	rec := &mockRecorder{}
	job := NewJob(store, newTestLogger(&buf), rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.created) != 1 || rec.created[0] != 1 {
		t.Errorf("recorded = %v, want [1]", rec.created)
	}
}

func TestJob_Run_PartialFailureContinues(t *testing.T) {
	var buf bytes.Buffer
	store := &mockProfileStore{
		listFn: listOf("u1", "u2", "u3"),
		createFn: func(_ context.Context, u *model.User) (bool, error) {
			if u.ID == "u2" {
				return false, errors.New("insert failed")
			}
			return true, nil
		},
	}
	rec := &mockRecorder{}
	job := NewJob(store, newTestLogger(&buf), rec)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when some profiles fail")
	}
	if len(store.createdFor) != 3 {
		t.Errorf("all users should be attempted, got %v", store.createdFor)
	}
	if len(rec.created) != 1 || rec.created[0] != 2 {
		t.Errorf("recorded = %v, want [2]", rec.created)
	}
	if !strings.Contains(buf.String(), "u2") {
		t.Errorf("failed user should be logged, got: %s", buf.String())
	}
}

func TestJob_Run_ListError(t *testing.T) {
	var buf bytes.Buffer
	listErr := errors.New("db down")
	store := &mockProfileStore{
		listFn: func(context.Context, int) ([]*model.User, error) { return nil, listErr },
	}
	job := NewJob(store, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); !errors.Is(err, listErr) {
		t.Fatalf("err = %v, want wrapped %v", err, listErr)
	}
}

func TestJob_Run_StopsOnCanceledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	store := &mockProfileStore{
		listFn: listOf("u1", "u2", "u3"),
		createFn: func(context.Context, *model.User) (bool, error) {
			cancel()
			return true, nil
		},
	}
	job := NewJob(store, newTestLogger(&buf), nil)

	err := job.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(store.createdFor) != 1 {
		t.Errorf("createdFor = %v, want only the first user", store.createdFor)
	}
}

func TestJob_Run_CustomBatchSize(t *testing.T) {
	var buf bytes.Buffer
	store := &mockProfileStore{listFn: listOf()}
	job := NewJob(store, newTestLogger(&buf), nil)
	job.BatchSize = 10

	_ = job.Run(context.Background())

	if store.listLimit != 10 {
		t.Errorf("limit = %d, want 10", store.listLimit)
	}
}
