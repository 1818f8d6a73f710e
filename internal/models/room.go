// Package models contains data structures for the application's domain models.
package models

import "time"

// RoomState is the lifecycle state of a broadcast room.
type RoomState string

const (
	// RoomStateWaiting indicates a room was created but no media signal arrived yet.
	RoomStateWaiting RoomState = "waiting"
	// RoomStatePreview indicates the ingest bridge produced a manifest but the host
	// has not gone live.
	RoomStatePreview RoomState = "preview"
	// RoomStateLive indicates the room is broadcasting to viewers.
	RoomStateLive RoomState = "live"
	// RoomStateEnded is terminal; a room never re-enters preview or live.
	RoomStateEnded RoomState = "ended"
)

// ModerationStatus is the moderation flag of a room, orthogonal to lifecycle state.
type ModerationStatus string

const (
	ModerationActive ModerationStatus = "active"
	ModerationBanned ModerationStatus = "banned"
)

// PrivacyType controls who may subscribe to a room.
type PrivacyType string

const (
	PrivacyPublic     PrivacyType = "public"
	PrivacyFollowOnly PrivacyType = "follow_only"
)

// Room represents one live broadcast session with its own lifecycle, chat and viewer set.
type Room struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	HostID           uint             `gorm:"not null;index" json:"host_id"`
	Host             User             `gorm:"foreignKey:HostID" json:"host,omitempty"`
	Title            string           `gorm:"size:255" json:"title"`
	Description      string           `gorm:"type:text" json:"description"`
	State            RoomState        `gorm:"size:16;not null;default:waiting;index" json:"state"`
	ModerationStatus ModerationStatus `gorm:"size:16;not null;default:active" json:"moderation_status"`
	PrivacyType      PrivacyType      `gorm:"size:16;not null;default:public" json:"privacy_type"`

	// StreamKey is the opaque ingest credential, rotated per room. It is never
	// exposed in public snapshots.
	StreamKey string `gorm:"size:64;not null;uniqueIndex" json:"-"`

	// ManifestRef points at the playable media manifest. Non-nil only while the
	// room is in preview or live.
	ManifestRef *string `gorm:"size:500" json:"manifest_ref,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Room) TableName() string {
	return "rooms"
}

// IsTerminal reports whether the room can never broadcast again.
func (r *Room) IsTerminal() bool {
	return r.State == RoomStateEnded || r.ModerationStatus == ModerationBanned
}

// AcceptsChat reports whether chat posting is allowed in the current state.
func (r *Room) AcceptsChat() bool {
	return r.State == RoomStatePreview || r.State == RoomStateLive
}

// AcceptsDetailEdits reports whether title/description/privacy edits are allowed.
func (r *Room) AcceptsDetailEdits() bool {
	switch r.State {
	case RoomStateWaiting, RoomStatePreview, RoomStateLive:
		return true
	}
	return false
}

// Snapshot is the privacy-filtered view of a room returned to callers.
type Snapshot struct {
	ID               uint             `json:"id"`
	HostID           uint             `json:"host_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	State            RoomState        `json:"state"`
	ModerationStatus ModerationStatus `json:"moderation_status"`
	PrivacyType      PrivacyType      `json:"privacy_type"`
	ManifestRef      *string          `json:"manifest_ref,omitempty"`
	ViewerCount      int              `json:"viewer_count"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	EndedAt          *time.Time       `json:"ended_at,omitempty"`
}

// SnapshotOf builds a Snapshot from a room. The manifest reference is withheld
// from callers who may not watch (the subscribe-time privacy check decides that).
func SnapshotOf(r *Room, viewerCount int, includeManifest bool) Snapshot {
	s := Snapshot{
		ID:               r.ID,
		HostID:           r.HostID,
		Title:            r.Title,
		Description:      r.Description,
		State:            r.State,
		ModerationStatus: r.ModerationStatus,
		PrivacyType:      r.PrivacyType,
		ViewerCount:      viewerCount,
		StartedAt:        r.StartedAt,
		EndedAt:          r.EndedAt,
	}
	if includeManifest {
		s.ManifestRef = r.ManifestRef
	}
	return s
}
