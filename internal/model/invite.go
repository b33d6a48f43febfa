package model

import "time"

// inviteIDSeparator はInvite IDにおけるresourceIDとguestKeyの区切り文字。
// guestKeyはこの文字を含まないため、末尾の区切りで一意に分割できる。
const inviteIDSeparator = "_"

// Invite は1件のGuestStateを写した独立したレコード。
// 共有先側からメールアドレスで検索するために使用する。
// IDは resourceID と guestKey から決定的に生成されるため、再作成は上書きになる。
type Invite struct {
	ID             string      `json:"id"`
	ResourceID     string      `json:"resourceId"`
	OwnerID        string      `json:"ownerId"`
	RecipientEmail string      `json:"recipientEmail"`
	RecipientKey   string      `json:"recipientKey"`
	Status         GuestStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	RespondedAt    *time.Time  `json:"respondedAt,omitempty"`
}

// InviteID はresourceIDとguestKeyからInviteのIDを生成する。
func InviteID(resourceID, guestKey string) string {
	return resourceID + inviteIDSeparator + guestKey
}

// NewInviteForGuest はGuestStateを写したInviteを生成する。
func NewInviteForGuest(resource *Resource, guestKey string, guest GuestState) *Invite {
	return &Invite{
		ID:             InviteID(resource.ID, guestKey),
		ResourceID:     resource.ID,
		OwnerID:        resource.OwnerID,
		RecipientEmail: guest.Email,
		RecipientKey:   guestKey,
		Status:         guest.Status,
		CreatedAt:      guest.InvitedAt,
		RespondedAt:    guest.RespondedAt,
	}
}

// Mirrors はInviteがGuestStateの内容と一致しているかを返す。
func (i *Invite) Mirrors(resource *Resource, guestKey string, guest GuestState) bool {
	return i.ResourceID == resource.ID &&
		i.OwnerID == resource.OwnerID &&
		i.RecipientKey == guestKey &&
		i.Status == guest.Status
}
