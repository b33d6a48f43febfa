package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock"

	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/notification"
	"github.com/hitoshi/vaultshare/internal/repository"
	"github.com/hitoshi/vaultshare/internal/security"
)

var (
	alice = model.Principal{UserID: "u1", Email: "alice@example.com"}
	bob   = model.Principal{UserID: "u2", Email: "bob@example.com"}
	carol = model.Principal{UserID: "u3", Email: "carol@example.com"}
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 10,
		Delay:       time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Clock:       clock.WallClock,
	}
}

// newTestService はメモリストアを使用したServiceを生成する。
func newTestService(t *testing.T, store repository.DocumentStore) *Service {
	t.Helper()
	svc := NewService(store, notification.NewEmitter(security.NewDisplaySanitizer(0)), nil, testRetryConfig())
	svc.now = func() time.Time { return testNow }
	return svc
}

func share(t *testing.T, svc *Service, owner model.Principal, resourceID string, emails ...string) *SetSharingResult {
	t.Helper()
	res, err := svc.SetSharing(context.Background(), owner, SetSharingRequest{
		ResourceID:  resourceID,
		GuestEmails: emails,
		Enabled:     len(emails) > 0,
	})
	if err != nil {
		t.Fatalf("SetSharing(%v): %v", emails, err)
	}
	return res
}

func getResource(t *testing.T, store repository.DocumentStore, id string) *model.Resource {
	t.Helper()
	doc, err := store.Get(context.Background(), repository.ResourcePath(id))
	if err != nil {
		t.Fatalf("Get resource %s: %v", id, err)
	}
	var r model.Resource
	if err := doc.Decode(&r); err != nil {
		t.Fatalf("decode resource: %v", err)
	}
	return &r
}

func getInvite(t *testing.T, store repository.DocumentStore, id string) *model.Invite {
	t.Helper()
	doc, err := store.Get(context.Background(), repository.InvitePath(id))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("Get invite %s: %v", id, err)
	}
	var inv model.Invite
	if err := doc.Decode(&inv); err != nil {
		t.Fatalf("decode invite: %v", err)
	}
	return &inv
}

func invitesFor(t *testing.T, store repository.DocumentStore, resourceID string) []*repository.Document {
	t.Helper()
	docs, err := store.QueryByField(context.Background(), repository.CollectionInvites, "resourceId", resourceID)
	if err != nil {
		t.Fatalf("QueryByField: %v", err)
	}
	return docs
}

func inbox(t *testing.T, store repository.DocumentStore, userID string) []model.Notification {
	t.Helper()
	list, err := notification.NewInbox(store).List(context.Background(), userID, 1000)
	if err != nil {
		t.Fatalf("Inbox.List: %v", err)
	}
	return list
}

func seedRaw(t *testing.T, store repository.DocumentStore, path, raw string) {
	t.Helper()
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx repository.Transaction) error {
		return tx.Set(ctx, path, json.RawMessage(raw))
	})
	if err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

// assertConsistent はリソースの導出値と招待ドキュメントがsharedWithと一致していることを検証する。
func assertConsistent(t *testing.T, store repository.DocumentStore, resourceID string) {
	t.Helper()
	r := getResource(t, store, resourceID)
	if err := r.CheckInvariants(); err != nil {
		t.Errorf("invariant violated: %v", err)
	}

	docs := invitesFor(t, store, resourceID)
	if len(docs) != len(r.SharedWith) {
		t.Errorf("invite count = %d, guest count = %d", len(docs), len(r.SharedWith))
	}
	for key, g := range r.SharedWith {
		inv := getInvite(t, store, model.InviteID(resourceID, key))
		if inv == nil {
			t.Errorf("invite for %s is missing", key)
			continue
		}
		if !inv.Mirrors(r, key, g) {
			t.Errorf("invite for %s = %+v does not mirror %+v", key, inv, g)
		}
	}
}

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	if !model.HasCode(err, code) {
		t.Fatalf("error = %v, want %s", err, code)
	}
}
