// Package event defines the wire contract of the realtime channel.
// Event names and payload shapes are stable; changing them breaks clients.
package event

import (
	"encoding/json"
	"time"
)

// Targeted events, delivered to one specific connection.
const (
	ForcedLogout = "forced_logout"
	UserMuted    = "user_muted"
	UserBanned   = "user_banned"
	UserKicked   = "user_kicked"
)

// Broadcast events, delivered to all connections or a group.
const (
	ChatUpdateUsers  = "chat_update_users"
	NotifyUserMuted  = "notify_user_muted"
	NotifyUserBanned = "notify_user_banned"
	UserUnmuted      = "user_unmuted"
	UserUnbanned     = "user_unbanned"
	ChatMessage      = "chat_message"
	Typing           = "typing"
)

// Inbound events accepted from clients.
const (
	Entered    = "entered"
	JoinGroup  = "join_group"
	LeaveGroup = "leave_group"
)

// Envelope is the framing of every websocket message, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PunishmentNotice is the payload of user_muted, user_banned,
// notify_user_muted and notify_user_banned. ExpiresAt is null for
// permanent punishments.
type PunishmentNotice struct {
	UserID    string     `json:"userId"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Unpunished is the payload of user_unmuted and user_unbanned.
type Unpunished struct {
	UserID string `json:"userId"`
}

// TypingNotice is relayed to every connection except the typist.
type TypingNotice struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// GroupRequest is the inbound payload of join_group and leave_group.
type GroupRequest struct {
	Group string `json:"group"`
}

// InboundMessage is the client-side payload of chat_message.
type InboundMessage struct {
	Room    int    `json:"room"`
	Content string `json:"content"`
}

// OutboundMessage is the broadcast payload of chat_message, after the
// content went through the profanity moderator.
type OutboundMessage struct {
	ID          string    `json:"id"`
	Room        int       `json:"room"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Content     string    `json:"content"`
	Lang        string    `json:"lang,omitempty"`
	At          time.Time `json:"at"`
}
