package sharing

import (
	"context"
	"log/slog"

	"github.com/hitoshi/vaultshare/internal/guestkey"
	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/repository"
)

// RespondResult は招待への回答結果。
type RespondResult struct {
	Invite   *model.Invite
	Resource *model.Resource
}

// RespondToInvite は共有先が招待を承諾または辞退する。
// 回答済みの招待に対する2回目の呼び出しはINVITE_ALREADY_RESOLVEDで失敗し、何も変更しない。
// 辞退した共有先はオーナーが外すまでsharedWithに残る。
func (s *Service) RespondToInvite(ctx context.Context, guest model.Principal, inviteID string, accept bool) (*RespondResult, error) {
	guestKey, err := guestkey.Normalize(guest.Email)
	if err != nil {
		return nil, model.NewInviteNotFoundError(inviteID)
	}

	var result *RespondResult
	var emitted int

	err = s.runTransaction(ctx, OpRespondToInvite, func(ctx context.Context, tx repository.Transaction) error {
		inv, err := readInvite(ctx, tx, inviteID)
		if err != nil {
			return err
		}
		// 他人宛ての招待は存在しないものとして扱う
		if inv == nil || inv.RecipientKey != guestKey {
			return model.NewInviteNotFoundError(inviteID)
		}
		if inv.Status != model.GuestStatusPending {
			return model.NewAlreadyResolvedError(inviteID, inv.Status)
		}

		current, err := readResource(ctx, tx, inv.ResourceID)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NewResourceNotFoundError(inv.ResourceID)
		}
		state, ok := current.SharedWith[guestKey]
		if !ok {
			return model.NewInviteNotFoundError(inviteID)
		}
		if state.Status != model.GuestStatusPending {
			return model.NewAlreadyResolvedError(inviteID, state.Status)
		}

		now := s.now()
		r := current.Clone()
		kind := model.NotificationInviteRejected
		state.Status = model.GuestStatusRejected
		if accept {
			kind = model.NotificationInviteAccepted
			state.Status = model.GuestStatusAccepted
			state.GuestID = guest.UserID
		}
		state.RespondedAt = &now
		r.SharedWith[guestKey] = state
		r.UpdatedAt = now
		r.Recompute()

		updated := *inv
		updated.Status = state.Status
		updated.RespondedAt = &now

		eff := &effects{
			resource:   r,
			inviteSets: []*model.Invite{&updated},
			notifications: []model.Notification{
				s.emitter.Build(kind, r.OwnerID, r, guest.UserID, state.Email, now),
			},
		}
		n, err := s.apply(ctx, tx, eff)
		if err != nil {
			return err
		}
		result, emitted = &RespondResult{Invite: &updated, Resource: r}, n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordNotificationsEmitted(emitted)
	slog.Info("招待に回答しました",
		slog.String("invite_id", inviteID),
		slog.String("status", string(result.Invite.Status)),
		slog.Int("accepted_count", result.Resource.AcceptedCount),
	)
	return result, nil
}
