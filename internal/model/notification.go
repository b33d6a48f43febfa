package model

import "time"

// NotificationType は通知の種別。ドット区切りの小文字トピック名で表す。
type NotificationType string

const (
	// NotificationInviteSent は招待送信時にオーナーへ送る通知。
	NotificationInviteSent NotificationType = "sharing.invite.sent"
	// NotificationInviteAccepted は共有先が承諾した際にオーナーへ送る通知。
	NotificationInviteAccepted NotificationType = "sharing.invite.accepted"
	// NotificationInviteRejected は共有先が拒否した際にオーナーへ送る通知。
	NotificationInviteRejected NotificationType = "sharing.invite.rejected"
	// NotificationAccessRevoked は承諾済みの共有先からアクセスを取り消した際に共有先へ送る通知。
	NotificationAccessRevoked NotificationType = "sharing.access.revoked"
)

// Notification はユーザーごとの受信箱に追記される通知。作成後に変更されることはない。
// IDはストアが追記時に採番し、ドキュメントパスの末尾から復元する。
type Notification struct {
	ID            string           `json:"-"`
	RecipientID   string           `json:"recipientId"`
	Type          NotificationType `json:"type"`
	ResourceID    string           `json:"resourceId"`
	ResourceLabel string           `json:"resourceLabel,omitempty"`
	ActorID       string           `json:"actorId,omitempty"`
	GuestEmail    string           `json:"guestEmail,omitempty"`
	Message       string           `json:"message"`
	CreatedAt     time.Time        `json:"createdAt"`
}
