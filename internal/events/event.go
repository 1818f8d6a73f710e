// Package events provides per-room broadcast of lifecycle, chat and presence
// events to subscribed viewer connections.
package events

import "time"

// EventType identifies an event on a room's channel.
type EventType string

const (
	TypePreviewReady   EventType = "preview_ready"
	TypeWentLive       EventType = "went_live"
	TypeEnded          EventType = "ended"
	TypeBanned         EventType = "banned"
	TypePrivacyChanged EventType = "privacy_changed"
	TypeDetailsChanged EventType = "details_changed"
	TypeViewerCount    EventType = "viewer_count"
	TypeNewMessage     EventType = "new_message"
	TypeMessageRemoved EventType = "message_removed"
	TypeChatBanned     EventType = "chat_banned"
	TypeChatUnbanned   EventType = "chat_unbanned"
	TypeChatError      EventType = "chat_error"

	// TypeAdminNewReport goes to the admin channel only, never to room viewers.
	TypeAdminNewReport EventType = "admin_new_report"
)

// Event is the envelope delivered to every subscriber of a room, in publish
// order. Seq is assigned per room at publish time.
type Event struct {
	Type    EventType   `json:"type"`
	RoomID  uint        `json:"room_id"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload,omitempty"`
	TS      time.Time   `json:"ts"`
}

// Payloads for each event type.

type PreviewReadyPayload struct {
	ManifestRef string `json:"manifest_ref"`
}

type BannedPayload struct {
	Reason string `json:"reason"`
}

type PrivacyChangedPayload struct {
	PrivacyType string `json:"privacy_type"`
}

type DetailsChangedPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ViewerCountPayload struct {
	// Count is the absolute viewer count, not a delta, so subscribers that
	// missed intermediate events do not drift.
	Count int `json:"count"`
}

type NewMessagePayload struct {
	ID       uint      `json:"id"`
	AuthorID uint      `json:"author_id"`
	Author   string    `json:"author"`
	Text     string    `json:"text"`
	TS       time.Time `json:"ts"`
}

type MessageRemovedPayload struct {
	ID uint `json:"id"`
}

type ChatBannedPayload struct {
	UserID uint `json:"user_id"`
}

type ChatUnbannedPayload struct {
	UserID uint `json:"user_id"`
}

type ChatErrorPayload struct {
	Reason string `json:"reason"`
}

type AdminNewReportPayload struct {
	ReportID     uint   `json:"report_id"`
	RoomID       uint   `json:"room_id"`
	Reason       string `json:"reason"`
	PendingCount int64  `json:"pending_count"`
}

// Publisher is the write side of the bus as seen by services.
type Publisher interface {
	Publish(roomID uint, evtType EventType, payload interface{})
	PublishAdmin(evtType EventType, payload interface{})
}
