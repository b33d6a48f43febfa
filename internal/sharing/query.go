package sharing

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/vaultshare/internal/guestkey"
	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/repository"
)

// ListActiveGuests はPENDINGまたはACCEPTEDの共有先を返す。
// 表示用の読み取り専用の射影であり、トランザクションは使わない。
func (s *Service) ListActiveGuests(ctx context.Context, requester model.Principal, resourceID string) ([]model.GuestEntry, error) {
	r, err := s.loadOwnedResource(ctx, requester, resourceID)
	if err != nil {
		return nil, err
	}
	return r.Guests(true), nil
}

// ListGuests は辞退済みを含む全ての共有先を返す。オーナーの管理画面用。
func (s *Service) ListGuests(ctx context.Context, requester model.Principal, resourceID string) ([]model.GuestEntry, error) {
	r, err := s.loadOwnedResource(ctx, requester, resourceID)
	if err != nil {
		return nil, err
	}
	return r.Guests(false), nil
}

// ListPendingInvites は呼び出し元のメールアドレス宛てで未回答の招待を返す。
func (s *Service) ListPendingInvites(ctx context.Context, guest model.Principal) ([]*model.Invite, error) {
	key, err := guestkey.Normalize(guest.Email)
	if err != nil {
		return nil, model.NewInvalidEmailError(guest.Email)
	}

	docs, err := s.store.QueryByField(ctx, repository.CollectionInvites, "recipientKey", key)
	if err != nil {
		return nil, fmt.Errorf("failed to query invites: %w", err)
	}

	invites := make([]*model.Invite, 0, len(docs))
	for _, doc := range docs {
		var inv model.Invite
		if err := doc.Decode(&inv); err != nil {
			return nil, err
		}
		if inv.Status != model.GuestStatusPending {
			continue
		}
		if inv.ID == "" {
			inv.ID = doc.ID()
		}
		invites = append(invites, &inv)
	}
	return invites, nil
}

// loadOwnedResource はトランザクション外でリソースを読み取り、所有者を確認する。
func (s *Service) loadOwnedResource(ctx context.Context, requester model.Principal, resourceID string) (*model.Resource, error) {
	doc, err := s.store.Get(ctx, repository.ResourcePath(resourceID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewResourceNotFoundError(resourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}

	var r model.Resource
	if err := doc.Decode(&r); err != nil {
		return nil, err
	}
	if r.OwnerID != requester.UserID {
		return nil, model.NewResourceNotFoundError(resourceID)
	}
	return &r, nil
}
