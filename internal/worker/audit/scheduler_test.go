package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/notification"
	"github.com/hitoshi/vaultshare/internal/repository"
	"github.com/hitoshi/vaultshare/internal/security"
	"github.com/hitoshi/vaultshare/internal/sharing"
)

// --- モック定義 ---

// mockReconciler はReconcilerのテスト用モック。
type mockReconciler struct {
	listResourceIDsFunc func(ctx context.Context) ([]string, error)
	reconcileFunc       func(ctx context.Context, resourceID string) (*sharing.ReconcileReport, error)
}

func (m *mockReconciler) ListResourceIDs(ctx context.Context) ([]string, error) {
	if m.listResourceIDsFunc != nil {
		return m.listResourceIDsFunc(ctx)
	}
	return nil, nil
}

func (m *mockReconciler) Reconcile(ctx context.Context, resourceID string) (*sharing.ReconcileReport, error) {
	if m.reconcileFunc != nil {
		return m.reconcileFunc(ctx, resourceID)
	}
	return &sharing.ReconcileReport{ResourceID: resourceID}, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewScheduler_DefaultConcurrency(t *testing.T) {
	var buf bytes.Buffer

	s := NewScheduler(&mockReconciler{}, newTestLogger(&buf), 0)
	if s.maxConcurrency != 4 {
		t.Errorf("maxConcurrency = %d, want 4", s.maxConcurrency)
	}
}

func TestRunOnce_NoResources(t *testing.T) {
	var buf bytes.Buffer
	called := false
	rec := &mockReconciler{
		reconcileFunc: func(ctx context.Context, resourceID string) (*sharing.ReconcileReport, error) {
			called = true
			return nil, nil
		},
	}

	result, err := NewScheduler(rec, newTestLogger(&buf), 2).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if called {
		t.Error("Reconcile should not be called without resources")
	}
	if result.Resources != 0 {
		t.Errorf("Resources = %d, want 0", result.Resources)
	}
}

func TestRunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockReconciler{
		listResourceIDsFunc: func(ctx context.Context) ([]string, error) {
			return nil, errors.New("store unavailable")
		},
	}

	if _, err := NewScheduler(rec, newTestLogger(&buf), 2).RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce should return the list error")
	}
}

func TestRunOnce_AggregatesRepairsAndFailures(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockReconciler{
		listResourceIDsFunc: func(ctx context.Context) ([]string, error) {
			return []string{"r1", "r2", "r3"}, nil
		},
		reconcileFunc: func(ctx context.Context, resourceID string) (*sharing.ReconcileReport, error) {
			switch resourceID {
			case "r1":
				return &sharing.ReconcileReport{ResourceID: resourceID, OrphanedInvites: []string{"r1_x@example.com"}, ResourceRewritten: true}, nil
			case "r2":
				return nil, model.NewTransactionConflictError()
			default:
				return &sharing.ReconcileReport{ResourceID: resourceID}, nil
			}
		},
	}

	result, err := NewScheduler(rec, newTestLogger(&buf), 2).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if result.Resources != 3 || result.Repaired != 2 || result.Failed != 1 {
		t.Errorf("result = %+v, want {Resources:3 Repaired:2 Failed:1}", result)
	}

	logs := buf.String()
	if !strings.Contains(logs, `"resource_id":"r1"`) {
		t.Error("repair log for r1 is missing")
	}
	if !strings.Contains(logs, `"resource_id":"r2"`) {
		t.Error("failure log for r2 is missing")
	}
}

func TestRunOnce_RespectsMaxConcurrency(t *testing.T) {
	var buf bytes.Buffer
	const limit = 2

	var current, peak atomic.Int32
	var mu sync.Mutex
	ids := []string{"a", "b", "c", "d", "e", "f"}

	rec := &mockReconciler{
		listResourceIDsFunc: func(ctx context.Context) ([]string, error) {
			return ids, nil
		},
		reconcileFunc: func(ctx context.Context, resourceID string) (*sharing.ReconcileReport, error) {
			n := current.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return &sharing.ReconcileReport{ResourceID: resourceID}, nil
		},
	}

	if _, err := NewScheduler(rec, newTestLogger(&buf), limit).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if peak.Load() > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), limit)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	var cycles atomic.Int32
	rec := &mockReconciler{
		listResourceIDsFunc: func(ctx context.Context) ([]string, error) {
			cycles.Add(1)
			return nil, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(rec, newTestLogger(&buf), 1).Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回を待つ
	deadline := time.After(2 * time.Second)
	for cycles.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial cycle did not run")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

// TestRunOnce_RepairsMissingInvite は実サービスで欠落した招待が再作成されることを検証する。
func TestRunOnce_RepairsMissingInvite(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryDocumentStore()
	svc := sharing.NewService(store, notification.NewEmitter(security.NewDisplaySanitizer(0)), nil, sharing.DefaultRetryConfig())

	owner := model.Principal{UserID: "u1", Email: "alice@example.com"}
	if _, err := svc.SetSharing(ctx, owner, sharing.SetSharingRequest{
		ResourceID:  "r1",
		GuestEmails: []string{"bob@example.com"},
		Enabled:     true,
	}); err != nil {
		t.Fatalf("SetSharing: %v", err)
	}

	inviteID := model.InviteID("r1", "bob@example.com")
	err := store.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		return tx.Delete(ctx, repository.InvitePath(inviteID))
	})
	if err != nil {
		t.Fatalf("delete invite: %v", err)
	}

	var buf bytes.Buffer
	result, err := NewScheduler(svc, newTestLogger(&buf), 2).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if result.Repaired != 1 {
		t.Errorf("Repaired = %d, want 1", result.Repaired)
	}
	if _, err := store.Get(ctx, repository.InvitePath(inviteID)); err != nil {
		t.Errorf("invite was not recreated: %v", err)
	}

	// 2回目は修復対象なし
	result, err = NewScheduler(svc, newTestLogger(&buf), 2).RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce returned error: %v", err)
	}
	if result.Repaired != 0 {
		t.Errorf("second Repaired = %d, want 0", result.Repaired)
	}
}
