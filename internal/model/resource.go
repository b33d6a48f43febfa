// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Visibility はリソースの公開状態を表す。
// UIから直接設定されることはなく、SharedWithから常に導出される。
type Visibility string

const (
	// VisibilityPrivate は有効な共有先が存在しない状態。
	VisibilityPrivate Visibility = "PRIVATE"
	// VisibilityShared はPENDINGまたはACCEPTEDの共有先が1件以上存在する状態。
	VisibilityShared Visibility = "SHARED"
)

// GuestStatus は共有先ごとの招待状態を表す。
type GuestStatus string

const (
	// GuestStatusPending は招待済みで未回答の状態。
	GuestStatusPending GuestStatus = "PENDING"
	// GuestStatusAccepted は共有先が招待を承諾した状態。
	GuestStatusAccepted GuestStatus = "ACCEPTED"
	// GuestStatusRejected は共有先が招待を拒否した状態。
	GuestStatusRejected GuestStatus = "REJECTED"
)

// IsActive はリソースの公開状態に寄与するステータス（PENDING/ACCEPTED）かどうかを返す。
func (s GuestStatus) IsActive() bool {
	return s == GuestStatusPending || s == GuestStatusAccepted
}

// ParseGuestStatus は大文字小文字を区別せずにステータス文字列を解析する。
// 未知の値の場合はPENDINGとfalseを返す。
func ParseGuestStatus(raw string) (GuestStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return GuestStatusPending, true
	case "ACCEPTED":
		return GuestStatusAccepted, true
	case "REJECTED":
		return GuestStatusRejected, true
	default:
		return GuestStatusPending, false
	}
}

// ResourceKind は共有対象の資格情報の種別を表す。
type ResourceKind string

const (
	// ResourceKindAccount はID/パスワード等の資格情報フィールドを持つアカウント。
	ResourceKindAccount ResourceKind = "ACCOUNT"
	// ResourceKindMemo は資格情報フィールドを持たないメモ。
	ResourceKindMemo ResourceKind = "MEMO"
)

// KindFor はメモ種別フラグからResourceKindを返す。
func KindFor(isMemo bool) ResourceKind {
	if isMemo {
		return ResourceKindMemo
	}
	return ResourceKindAccount
}

// GuestState は1人の共有先とリソースの関係を表す。
type GuestState struct {
	Email       string      `json:"email"`
	Status      GuestStatus `json:"status"`
	GuestID     string      `json:"guestId,omitempty"`
	InvitedAt   time.Time   `json:"invitedAt"`
	RespondedAt *time.Time  `json:"respondedAt,omitempty"`
}

// GuestEntry はguestKeyとGuestStateの組。一覧表示用。
type GuestEntry struct {
	Key string
	GuestState
}

// Resource は1人のユーザーが所有する共有可能な資格情報レコードを表す。
// Visibility と AcceptedCount は SharedWith からの導出値であり、
// コミットされる全トランザクションで Recompute により再計算される。
type Resource struct {
	ID            string                `json:"id"`
	OwnerID       string                `json:"ownerId"`
	Kind          ResourceKind          `json:"kind"`
	Label         string                `json:"label,omitempty"`
	Visibility    Visibility            `json:"visibility"`
	SharedWith    map[string]GuestState `json:"sharedWith"`
	AcceptedCount int                   `json:"acceptedCount"`
	UpdatedAt     time.Time             `json:"updatedAt"`

	// stale は読み込んだドキュメントが旧形式だったか、導出値が保存内容と食い違っていたことを示す。
	stale bool
}

// NeedsRewrite は読み込み時に移行や導出値の補正が行われ、
// ストアへの書き戻しが必要かどうかを返す。
func (r *Resource) NeedsRewrite() bool {
	return r.stale
}

// NewResource は共有先を持たないPRIVATEなResourceを生成する。
func NewResource(id, ownerID string, kind ResourceKind) *Resource {
	return &Resource{
		ID:         id,
		OwnerID:    ownerID,
		Kind:       kind,
		Visibility: VisibilityPrivate,
		SharedWith: map[string]GuestState{},
	}
}

// Recompute は SharedWith から AcceptedCount と Visibility を再計算する。
func (r *Resource) Recompute() {
	if r.SharedWith == nil {
		r.SharedWith = map[string]GuestState{}
	}
	accepted := 0
	active := false
	for _, g := range r.SharedWith {
		if g.Status == GuestStatusAccepted {
			accepted++
		}
		if g.Status.IsActive() {
			active = true
		}
	}
	r.AcceptedCount = accepted
	if active {
		r.Visibility = VisibilityShared
	} else {
		r.Visibility = VisibilityPrivate
	}
}

// CheckInvariants は導出値がSharedWithと整合しているかを検証する。
func (r *Resource) CheckInvariants() error {
	expected := r.Clone()
	expected.Recompute()
	if r.Visibility != expected.Visibility {
		return fmt.Errorf("resource %s: visibility = %s, want %s", r.ID, r.Visibility, expected.Visibility)
	}
	if r.AcceptedCount != expected.AcceptedCount {
		return fmt.Errorf("resource %s: acceptedCount = %d, want %d", r.ID, r.AcceptedCount, expected.AcceptedCount)
	}
	return nil
}

// Clone はResourceのディープコピーを返す。
func (r *Resource) Clone() *Resource {
	c := *r
	c.SharedWith = make(map[string]GuestState, len(r.SharedWith))
	for k, g := range r.SharedWith {
		c.SharedWith[k] = g
	}
	return &c
}

// Guests は共有先をguestKey順で返す。
// activeOnlyがtrueの場合はPENDING/ACCEPTEDのみを返す。
func (r *Resource) Guests(activeOnly bool) []GuestEntry {
	entries := make([]GuestEntry, 0, len(r.SharedWith))
	for k, g := range r.SharedWith {
		if activeOnly && !g.Status.IsActive() {
			continue
		}
		entries = append(entries, GuestEntry{Key: k, GuestState: g})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}
