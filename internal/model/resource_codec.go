package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/vaultshare/internal/guestkey"
)

// UnmarshalJSON はステータス文字列を大文字小文字を区別せずに解析する。
// 未知の値はPENDINGとして扱う。
func (s *GuestStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("guest status must be a string: %w", err)
	}
	*s, _ = ParseGuestStatus(raw)
	return nil
}

// resourceDocument はストア上のリソースドキュメントの入力形式。
// 旧形式のフィールド（isMemoShared、配列形式のsharedWith等）も受け付ける。
// visibilityとacceptedCountは導出値のため、再計算結果との比較にのみ使う。
type resourceDocument struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Kind          ResourceKind    `json:"kind"`
	Label         string          `json:"label"`
	Visibility    Visibility      `json:"visibility"`
	SharedWith    json.RawMessage `json:"sharedWith"`
	AcceptedCount *int            `json:"acceptedCount"`
	IsMemoShared  *bool           `json:"isMemoShared"`
	Shared        *bool           `json:"shared"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// UnmarshalJSON はリソースドキュメントを読み込み、旧形式をGuestStateに移行する。
// 移行はこの境界で1回だけ行い、業務ロジックは常に新形式のみを扱う。
func (r *Resource) UnmarshalJSON(data []byte) error {
	var doc resourceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode resource: %w", err)
	}

	guests, legacy, err := decodeSharedWith(doc.SharedWith)
	if err != nil {
		return fmt.Errorf("failed to decode sharedWith of resource %s: %w", doc.ID, err)
	}

	kind := doc.Kind
	if kind == "" {
		kind = KindFor(doc.IsMemoShared != nil && *doc.IsMemoShared)
		legacy = true
	}
	if doc.IsMemoShared != nil || doc.Shared != nil {
		legacy = true
	}

	*r = Resource{
		ID:         doc.ID,
		OwnerID:    doc.OwnerID,
		Kind:       kind,
		Label:      doc.Label,
		SharedWith: guests,
		UpdatedAt:  doc.UpdatedAt,
	}
	r.Recompute()
	r.stale = legacy ||
		r.Visibility != doc.Visibility ||
		doc.AcceptedCount == nil || r.AcceptedCount != *doc.AcceptedCount
	return nil
}

// decodeSharedWith はsharedWithを以下のいずれかの形式から読み込む。
//   - {guestKey: {email, status, ...}}  現行形式
//   - {email: "accepted"}               値がステータス文字列の旧形式
//   - ["a@example.com", ...]            メールアドレス配列の旧形式（PENDINGとして移行）
//
// 2番目の戻り値は現行形式以外からの移行やキーの付け替えが発生したかどうか。
func decodeSharedWith(raw json.RawMessage) (map[string]GuestState, bool, error) {
	guests := map[string]GuestState{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return guests, len(trimmed) == 0, nil
	}

	switch trimmed[0] {
	case '[':
		var emails []string
		if err := json.Unmarshal(trimmed, &emails); err != nil {
			return nil, false, err
		}
		for _, email := range emails {
			mergeGuest(guests, email, GuestState{Email: email, Status: GuestStatusPending})
		}
		return guests, true, nil

	case '{':
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, false, err
		}
		legacy := false
		for mapKey, value := range entries {
			value = bytes.TrimSpace(value)
			if len(value) > 0 && value[0] == '"' {
				var status GuestStatus
				if err := json.Unmarshal(value, &status); err != nil {
					return nil, false, err
				}
				mergeGuest(guests, mapKey, GuestState{Email: mapKey, Status: status})
				legacy = true
				continue
			}

			var g GuestState
			if err := json.Unmarshal(value, &g); err != nil {
				return nil, false, err
			}
			if g.Status == "" {
				g.Status = GuestStatusPending
				legacy = true
			}
			if g.Email == "" {
				g.Email = mapKey
				mergeGuest(guests, mapKey, g)
				legacy = true
				continue
			}
			if key, err := guestkey.Normalize(g.Email); err != nil || key != mapKey {
				legacy = true
			}
			mergeGuest(guests, g.Email, g)
		}
		return guests, legacy, nil
	}

	return nil, false, fmt.Errorf("unsupported sharedWith shape")
}

// mergeGuest はメールアドレスから導出したguestKeyでGuestStateを登録する。
// 大文字小文字違いの重複はACCEPTED > PENDING > REJECTEDの優先順位で1件にまとめ、
// 同順位の場合は辞書順で小さいメールアドレスを残す。
// guestKeyに変換できないアドレスは移行対象外として読み飛ばす。
func mergeGuest(guests map[string]GuestState, email string, g GuestState) {
	key, err := guestkey.Normalize(email)
	if err != nil {
		return
	}
	if existing, ok := guests[key]; ok {
		er, gr := statusRank(existing.Status), statusRank(g.Status)
		if er > gr || (er == gr && existing.Email <= g.Email) {
			return
		}
	}
	guests[key] = g
}

func statusRank(s GuestStatus) int {
	switch s {
	case GuestStatusAccepted:
		return 2
	case GuestStatusPending:
		return 1
	default:
		return 0
	}
}
