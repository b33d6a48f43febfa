package sharing

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/vaultshare/internal/guestkey"
	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/repository"
)

// SetSharingRequest はオーナーが望む共有先の全体集合。差分ではない。
type SetSharingRequest struct {
	ResourceID  string
	GuestEmails []string
	// Enabled がfalseの場合はGuestEmailsを無視して共有をすべて解除する。
	Enabled bool
	IsMemo  bool
	// Label が空でない場合はリソース名を更新する。
	Label string
}

// SetSharingResult はコミットされたリソースと変更内容の要約。
type SetSharingResult struct {
	Resource *model.Resource
	// Added は新たに招待したguestKey。
	Added []string
	// Reinvited は辞退済みからPENDINGに戻したguestKey。
	Reinvited []string
	// Revoked は共有先から外したguestKey。
	Revoked []string
	// RepairedInvites は欠落または不一致を修復した招待のguestKey。
	RepairedInvites []string
	// Changed はこの呼び出しで何らかの書き込みが行われたかどうか。
	Changed bool
}

// requestedGuest は正規化済みの共有先。
type requestedGuest struct {
	key   string
	email string
}

// SetSharing はリソースの共有先をGuestEmailsに一致させる。
// 同じ集合での再呼び出しは何も書き込まず、通知も発行しない。
func (s *Service) SetSharing(ctx context.Context, owner model.Principal, req SetSharingRequest) (*SetSharingResult, error) {
	requested, err := normalizeRequest(owner, req)
	if err != nil {
		return nil, err
	}

	var result *SetSharingResult
	var invitesSent, emitted int

	err = s.runTransaction(ctx, OpSetSharing, func(ctx context.Context, tx repository.Transaction) error {
		current, err := readResource(ctx, tx, req.ResourceID)
		if err != nil {
			return err
		}
		if current != nil && current.OwnerID != owner.UserID {
			return model.NewResourceNotFoundError(req.ResourceID)
		}

		invites := map[string]*model.Invite{}
		if current != nil {
			if invites, err = readInvitesFor(ctx, tx, current); err != nil {
				return err
			}
		}

		eff, res := s.planSetSharing(current, invites, owner, req, requested, s.now())
		n, err := s.apply(ctx, tx, eff)
		if err != nil {
			return err
		}
		result, invitesSent, emitted = res, len(res.Added)+len(res.Reinvited), n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvitesSent(invitesSent)
	s.metrics.RecordNotificationsEmitted(emitted)
	if result.Changed {
		slog.Info("共有設定を更新しました",
			slog.String("resource_id", req.ResourceID),
			slog.Int("added", len(result.Added)),
			slog.Int("reinvited", len(result.Reinvited)),
			slog.Int("revoked", len(result.Revoked)),
			slog.String("visibility", string(result.Resource.Visibility)),
		)
	}
	return result, nil
}

// normalizeRequest は共有先メールアドレスを検証・正規化する。
// 大文字小文字違いの重複は最初に現れた表記を残して1件にまとめる。
func normalizeRequest(owner model.Principal, req SetSharingRequest) ([]requestedGuest, error) {
	if strings.TrimSpace(req.ResourceID) == "" {
		return nil, model.NewResourceNotFoundError(req.ResourceID)
	}
	if !req.Enabled {
		return nil, nil
	}

	ownerKey, _ := guestkey.Normalize(owner.Email)
	seen := map[string]bool{}
	var guests []requestedGuest
	for _, raw := range req.GuestEmails {
		email, key, err := guestkey.Parse(raw)
		if err != nil {
			return nil, model.NewInvalidEmailError(raw)
		}
		if ownerKey != "" && key == ownerKey {
			return nil, model.NewSelfInviteError()
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		guests = append(guests, requestedGuest{key: key, email: email})
	}
	if len(guests) == 0 {
		return nil, model.NewEmptyGuestSetError()
	}
	sort.Slice(guests, func(i, j int) bool { return guests[i].key < guests[j].key })
	return guests, nil
}

// planSetSharing はスナップショットから書き込みと通知を導出する。副作用を持たない。
// currentがnilの場合は共有先のない新規リソースとして扱う。
func (s *Service) planSetSharing(
	current *model.Resource,
	invites map[string]*model.Invite,
	owner model.Principal,
	req SetSharingRequest,
	requested []requestedGuest,
	now time.Time,
) (*effects, *SetSharingResult) {
	exists := current != nil
	var r *model.Resource
	if exists {
		r = current.Clone()
	} else {
		r = model.NewResource(req.ResourceID, owner.UserID, model.KindFor(req.IsMemo))
	}

	eff := &effects{}
	res := &SetSharingResult{}
	changed := exists && current.NeedsRewrite()

	if kind := model.KindFor(req.IsMemo); r.Kind != kind {
		r.Kind = kind
		changed = true
	}
	if label := strings.TrimSpace(req.Label); label != "" && label != r.Label {
		r.Label = label
		changed = true
	}

	wanted := make(map[string]bool, len(requested))
	for _, g := range requested {
		wanted[g.key] = true
	}

	// 要求に含まれない既存の共有先を外す
	for _, entry := range r.Guests(false) {
		if wanted[entry.Key] {
			continue
		}
		delete(r.SharedWith, entry.Key)
		eff.inviteDeletes = append(eff.inviteDeletes, model.InviteID(r.ID, entry.Key))
		res.Revoked = append(res.Revoked, entry.Key)
		changed = true
		if entry.Status == model.GuestStatusAccepted {
			eff.notifications = append(eff.notifications,
				s.emitter.Build(model.NotificationAccessRevoked, entry.GuestID, r, owner.UserID, entry.Email, now))
		}
	}

	// 要求された共有先を招待する。PENDING/ACCEPTEDはそのまま残す
	for _, g := range requested {
		existing, ok := r.SharedWith[g.key]
		if ok && existing.Status.IsActive() {
			if inv := invites[g.key]; inv == nil || !inv.Mirrors(r, g.key, existing) {
				eff.inviteSets = append(eff.inviteSets, model.NewInviteForGuest(r, g.key, existing))
				res.RepairedInvites = append(res.RepairedInvites, g.key)
			}
			continue
		}

		guest := model.GuestState{
			Email:     g.email,
			Status:    model.GuestStatusPending,
			InvitedAt: now,
		}
		r.SharedWith[g.key] = guest
		eff.inviteSets = append(eff.inviteSets, model.NewInviteForGuest(r, g.key, guest))
		eff.notifications = append(eff.notifications,
			s.emitter.Build(model.NotificationInviteSent, owner.UserID, r, owner.UserID, g.email, now))
		if ok {
			res.Reinvited = append(res.Reinvited, g.key)
		} else {
			res.Added = append(res.Added, g.key)
		}
		changed = true
	}

	r.Recompute()

	if changed {
		r.UpdatedAt = now
		eff.resource = r
	}
	res.Resource = r
	res.Changed = changed || len(eff.inviteSets) > 0
	return eff, res
}
