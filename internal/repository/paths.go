package repository

import (
	"fmt"
	"strings"
)

// コレクション名
const (
	CollectionResources     = "resources"
	CollectionInvites       = "invites"
	CollectionNotifications = "notifications"
)

// ResourcePath はリソースドキュメントのパスを返す。
func ResourcePath(resourceID string) string {
	return CollectionResources + "/" + resourceID
}

// InvitePath は招待ドキュメントのパスを返す。
func InvitePath(inviteID string) string {
	return CollectionInvites + "/" + inviteID
}

// NotificationCollection はユーザーの受信箱コレクションのパスを返す。
func NotificationCollection(userID string) string {
	return CollectionNotifications + "/" + userID
}

// CollectionOf はパスから末尾セグメントを除いたコレクションパスを返す。
func CollectionOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// DocumentID はパス末尾のセグメントを返す。
func DocumentID(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// validatePath はパスが「コレクション/ID」形式で空のセグメントを含まないことを検証する。
func validatePath(path string) error {
	if !strings.Contains(path, "/") {
		return fmt.Errorf("invalid document path %q: missing collection", path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("invalid document path %q: empty segment", path)
		}
	}
	return nil
}
