package sharing

import (
	"context"
	"log/slog"

	"github.com/hitoshi/vaultshare/internal/guestkey"
	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/repository"
)

// RevokeAccess はオーナーが1人の共有先を外す。
// 承諾済みだった場合は共有先に取り消し通知を送る。最後の有効な共有先だった場合はPRIVATEに戻る。
func (s *Service) RevokeAccess(ctx context.Context, owner model.Principal, resourceID, guestEmail string) (*model.Resource, error) {
	key, err := guestkey.Normalize(guestEmail)
	if err != nil {
		return nil, model.NewInvalidEmailError(guestEmail)
	}

	var result *model.Resource
	var emitted int

	err = s.runTransaction(ctx, OpRevokeAccess, func(ctx context.Context, tx repository.Transaction) error {
		current, err := readResource(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if current == nil || current.OwnerID != owner.UserID {
			return model.NewResourceNotFoundError(resourceID)
		}
		state, ok := current.SharedWith[key]
		if !ok {
			return model.NewGuestNotFoundError(guestEmail)
		}

		now := s.now()
		r := current.Clone()
		delete(r.SharedWith, key)
		r.UpdatedAt = now
		r.Recompute()

		eff := &effects{
			resource:      r,
			inviteDeletes: []string{model.InviteID(r.ID, key)},
		}
		if state.Status == model.GuestStatusAccepted {
			eff.notifications = append(eff.notifications,
				s.emitter.Build(model.NotificationAccessRevoked, state.GuestID, r, owner.UserID, state.Email, now))
		}
		n, err := s.apply(ctx, tx, eff)
		if err != nil {
			return err
		}
		result, emitted = r, n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordNotificationsEmitted(emitted)
	slog.Info("共有先を取り消しました",
		slog.String("resource_id", resourceID),
		slog.String("visibility", string(result.Visibility)),
	)
	return result, nil
}
