package models

import "time"

// deletedPlaceholder replaces the text of soft-deleted messages in API responses.
const deletedPlaceholder = "[removed]"

// RoomMessage is one chat message in a room's append-only log. Messages are
// never physically removed; moderation sets Deleted and the row stays for audit
// and for ban-with-delete references.
type RoomMessage struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	RoomID   uint `gorm:"not null;index" json:"room_id"`
	AuthorID uint `gorm:"not null;index" json:"author_id"`
	Author   User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	Text    string `gorm:"type:text;not null" json:"text"`
	Deleted bool   `gorm:"not null;default:false" json:"deleted"`

	// ParentID links a reply to its parent message. Deleting a parent cascades
	// the Deleted flag one level down, to direct replies only.
	ParentID *uint `gorm:"index" json:"parent_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (RoomMessage) TableName() string {
	return "room_messages"
}

// Redacted returns the message with deleted text replaced by a placeholder.
func (m RoomMessage) Redacted() RoomMessage {
	if m.Deleted {
		m.Text = deletedPlaceholder
	}
	return m
}
