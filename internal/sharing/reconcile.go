package sharing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/repository"
)

// 修復の種類（メトリクスのラベル）
const (
	RepairOrphanInvite   = "orphan_invite"
	RepairMissingInvite  = "missing_invite"
	RepairMismatchInvite = "mismatch_invite"
	RepairResource       = "resource"
)

// ReconcileReport は1件のリソースに対する整合性修復の結果。
type ReconcileReport struct {
	ResourceID string
	// OrphanedInvites は対応するGuestStateがなく削除した招待のID。
	OrphanedInvites []string
	// MissingInvites は招待が存在せず再作成したguestKey。
	MissingInvites []string
	// MismatchedInvites はステータス等が食い違っていて書き直したguestKey。
	MismatchedInvites []string
	// ResourceRewritten は旧形式の移行または導出値の補正でリソースを書き直したかどうか。
	ResourceRewritten bool
}

// Repaired は修復したドキュメントの総数を返す。
func (r *ReconcileReport) Repaired() int {
	n := len(r.OrphanedInvites) + len(r.MissingInvites) + len(r.MismatchedInvites)
	if r.ResourceRewritten {
		n++
	}
	return n
}

// Reconcile はリソースと招待の整合性を検査し、食い違いを1回のトランザクションで修復する。
// 孤立した招待の削除、欠落した招待の再作成、ステータスの書き直し、導出値の再計算を行う。
// 状態遷移ではないため通知は発行しない。
func (s *Service) Reconcile(ctx context.Context, resourceID string) (*ReconcileReport, error) {
	// resourceIdで招待を検索するのはトランザクション外。検索後に作られた招待は
	// トランザクション内で共有先ごとに読み直すため見落とさない。
	docs, err := s.store.QueryByField(ctx, repository.CollectionInvites, "resourceId", resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invites: %w", err)
	}
	candidates := make([]string, 0, len(docs))
	for _, doc := range docs {
		candidates = append(candidates, doc.ID())
	}

	var report *ReconcileReport
	err = s.runTransaction(ctx, OpReconcile, func(ctx context.Context, tx repository.Transaction) error {
		current, err := readResource(ctx, tx, resourceID)
		if err != nil {
			return err
		}

		queried := make(map[string]*model.Invite, len(candidates))
		for _, id := range candidates {
			inv, err := readInvite(ctx, tx, id)
			if err != nil {
				return err
			}
			if inv != nil {
				queried[id] = inv
			}
		}

		var invites map[string]*model.Invite
		if current != nil {
			if invites, err = readInvitesFor(ctx, tx, current); err != nil {
				return err
			}
		}

		eff, rep := planReconcile(resourceID, current, queried, invites)
		if _, err := s.apply(ctx, tx, eff); err != nil {
			return err
		}
		report = rep
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRepairs(RepairOrphanInvite, len(report.OrphanedInvites))
	s.metrics.RecordRepairs(RepairMissingInvite, len(report.MissingInvites))
	s.metrics.RecordRepairs(RepairMismatchInvite, len(report.MismatchedInvites))
	if report.ResourceRewritten {
		s.metrics.RecordRepairs(RepairResource, 1)
	}
	if report.Repaired() > 0 {
		slog.Info("リソースの不整合を修復しました",
			slog.String("resource_id", resourceID),
			slog.Int("orphaned_invites", len(report.OrphanedInvites)),
			slog.Int("missing_invites", len(report.MissingInvites)),
			slog.Int("mismatched_invites", len(report.MismatchedInvites)),
			slog.Bool("resource_rewritten", report.ResourceRewritten),
		)
	}
	return report, nil
}

// planReconcile はスナップショットから修復内容を導出する。副作用を持たない。
func planReconcile(resourceID string, current *model.Resource, queried, invites map[string]*model.Invite) (*effects, *ReconcileReport) {
	eff := &effects{}
	rep := &ReconcileReport{ResourceID: resourceID}

	expected := map[string]bool{}
	if current != nil {
		for key := range current.SharedWith {
			expected[model.InviteID(current.ID, key)] = true
		}
	}
	for id := range queried {
		if !expected[id] {
			eff.inviteDeletes = append(eff.inviteDeletes, id)
			rep.OrphanedInvites = append(rep.OrphanedInvites, id)
		}
	}
	sort.Strings(eff.inviteDeletes)
	sort.Strings(rep.OrphanedInvites)

	if current == nil {
		return eff, rep
	}

	for _, entry := range current.Guests(false) {
		inv := invites[entry.Key]
		switch {
		case inv == nil:
			rep.MissingInvites = append(rep.MissingInvites, entry.Key)
		case !inv.Mirrors(current, entry.Key, entry.GuestState):
			rep.MismatchedInvites = append(rep.MismatchedInvites, entry.Key)
		default:
			continue
		}
		eff.inviteSets = append(eff.inviteSets, model.NewInviteForGuest(current, entry.Key, entry.GuestState))
	}

	if current.NeedsRewrite() {
		r := current.Clone()
		r.Recompute()
		eff.resource = r
		rep.ResourceRewritten = true
	}
	return eff, rep
}

// ListResourceIDs は整合性監査の対象となる全リソースのIDを重複なく昇順で返す。
// 親リソースが削除済みの孤立した招待も拾うため、招待が参照するresourceIdも含める。
func (s *Service) ListResourceIDs(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	for _, v := range []model.Visibility{model.VisibilityShared, model.VisibilityPrivate} {
		docs, err := s.store.QueryByField(ctx, repository.CollectionResources, "visibility", string(v))
		if err != nil {
			return nil, fmt.Errorf("failed to list resources: %w", err)
		}
		for _, doc := range docs {
			seen[doc.ID()] = true
		}
	}

	for _, st := range []model.GuestStatus{model.GuestStatusPending, model.GuestStatusAccepted, model.GuestStatusRejected} {
		docs, err := s.store.QueryByField(ctx, repository.CollectionInvites, "status", string(st))
		if err != nil {
			return nil, fmt.Errorf("failed to list invites: %w", err)
		}
		for _, doc := range docs {
			var inv model.Invite
			if err := doc.Decode(&inv); err != nil {
				slog.Warn("招待のデコードに失敗しました",
					slog.String("invite_id", doc.ID()),
					slog.String("error", err.Error()),
				)
				continue
			}
			if inv.ResourceID != "" {
				seen[inv.ResourceID] = true
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
