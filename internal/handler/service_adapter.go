package handler

import (
	"context"

	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/notification"
	"github.com/hitoshi/vaultshare/internal/sharing"
)

// SharingServiceAdapter は sharing.Service を SharingServiceInterface と InviteServiceInterface に適合させるアダプタ。
type SharingServiceAdapter struct {
	svc *sharing.Service
}

// NewSharingServiceAdapter はSharingServiceAdapterを生成する。
func NewSharingServiceAdapter(svc *sharing.Service) *SharingServiceAdapter {
	return &SharingServiceAdapter{svc: svc}
}

// SetSharing は共有設定を更新しhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) SetSharing(ctx context.Context, owner model.Principal, resourceID string, req setSharingRequest) (*sharingResponse, error) {
	result, err := a.svc.SetSharing(ctx, owner, sharing.SetSharingRequest{
		ResourceID:  resourceID,
		GuestEmails: req.GuestEmails,
		Enabled:     req.enabled(),
		IsMemo:      req.IsMemo,
		Label:       req.Label,
	})
	if err != nil {
		return nil, err
	}

	return &sharingResponse{
		Resource:        toResourceResponse(result.Resource),
		Added:           nonNil(result.Added),
		Reinvited:       nonNil(result.Reinvited),
		Revoked:         nonNil(result.Revoked),
		RepairedInvites: nonNil(result.RepairedInvites),
		Changed:         result.Changed,
	}, nil
}

// ListGuests は共有先一覧をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) ListGuests(ctx context.Context, owner model.Principal, resourceID string, includeInactive bool) ([]guestResponse, error) {
	var (
		entries []model.GuestEntry
		err     error
	)
	if includeInactive {
		entries, err = a.svc.ListGuests(ctx, owner, resourceID)
	} else {
		entries, err = a.svc.ListActiveGuests(ctx, owner, resourceID)
	}
	if err != nil {
		return nil, err
	}
	return toGuestResponses(entries), nil
}

// RevokeAccess は共有先を取り消しhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) RevokeAccess(ctx context.Context, owner model.Principal, resourceID, guestEmail string) (*resourceResponse, error) {
	r, err := a.svc.RevokeAccess(ctx, owner, resourceID, guestEmail)
	if err != nil {
		return nil, err
	}
	resp := toResourceResponse(r)
	return &resp, nil
}

// ListPendingInvites は未回答の招待をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) ListPendingInvites(ctx context.Context, guest model.Principal) ([]inviteResponse, error) {
	invites, err := a.svc.ListPendingInvites(ctx, guest)
	if err != nil {
		return nil, err
	}
	results := make([]inviteResponse, len(invites))
	for i, inv := range invites {
		results[i] = toInviteResponse(inv)
	}
	return results, nil
}

// RespondToInvite は招待に回答し、更新後の招待をhandlerレスポンス型で返す。
// 共有先には他の共有先の情報を含むリソース本体は返さない。
func (a *SharingServiceAdapter) RespondToInvite(ctx context.Context, guest model.Principal, inviteID string, accept bool) (*inviteResponse, error) {
	result, err := a.svc.RespondToInvite(ctx, guest, inviteID, accept)
	if err != nil {
		return nil, err
	}
	resp := toInviteResponse(result.Invite)
	return &resp, nil
}

// InboxAdapter は notification.Inbox を NotificationServiceInterface に適合させるアダプタ。
type InboxAdapter struct {
	inbox *notification.Inbox
}

// NewInboxAdapter はInboxAdapterを生成する。
func NewInboxAdapter(inbox *notification.Inbox) *InboxAdapter {
	return &InboxAdapter{inbox: inbox}
}

// ListNotifications は受信箱の通知をhandlerレスポンス型で返す。
func (a *InboxAdapter) ListNotifications(ctx context.Context, userID string, limit int) ([]notificationResponse, error) {
	notifications, err := a.inbox.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	results := make([]notificationResponse, len(notifications))
	for i, n := range notifications {
		results[i] = notificationResponse{
			ID:            n.ID,
			Type:          string(n.Type),
			ResourceID:    n.ResourceID,
			ResourceLabel: n.ResourceLabel,
			ActorID:       n.ActorID,
			GuestEmail:    n.GuestEmail,
			Message:       n.Message,
			CreatedAt:     n.CreatedAt,
		}
	}
	return results, nil
}

// toResourceResponse はドメインのResourceをhandlerのレスポンス型に変換する。
// 共有先は辞退済みを含めてキー順に並べる。
func toResourceResponse(r *model.Resource) resourceResponse {
	return resourceResponse{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Kind:          string(r.Kind),
		Label:         r.Label,
		Visibility:    string(r.Visibility),
		AcceptedCount: r.AcceptedCount,
		Guests:        toGuestResponses(r.Guests(false)),
		UpdatedAt:     r.UpdatedAt,
	}
}

func toGuestResponses(entries []model.GuestEntry) []guestResponse {
	results := make([]guestResponse, len(entries))
	for i, e := range entries {
		results[i] = guestResponse{
			Key:         e.Key,
			Email:       e.Email,
			Status:      string(e.Status),
			GuestID:     e.GuestID,
			InvitedAt:   e.InvitedAt,
			RespondedAt: e.RespondedAt,
		}
	}
	return results
}

func toInviteResponse(inv *model.Invite) inviteResponse {
	return inviteResponse{
		ID:             inv.ID,
		ResourceID:     inv.ResourceID,
		OwnerID:        inv.OwnerID,
		RecipientEmail: inv.RecipientEmail,
		Status:         string(inv.Status),
		CreatedAt:      inv.CreatedAt,
		RespondedAt:    inv.RespondedAt,
	}
}

// nonNil はJSONでnullではなく空配列を返すためにnilスライスを置き換える。
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- compile-time interface checks ---

var _ SharingServiceInterface = (*SharingServiceAdapter)(nil)
var _ InviteServiceInterface = (*SharingServiceAdapter)(nil)
var _ NotificationServiceInterface = (*InboxAdapter)(nil)
