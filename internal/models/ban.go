package models

import "time"

// ChatBan stores host-scoped chat bans. The key is (host, user): a user banned
// by host A may still chat in any room hosted by host B.
type ChatBan struct {
	HostID       uint      `gorm:"primaryKey;autoIncrement:false" json:"host_id"`
	UserID       uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BannedByID   uint      `gorm:"not null;index" json:"banned_by_id"`
	Reason       string    `gorm:"type:text;default:''" json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	User     *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BannedBy *User `gorm:"foreignKey:BannedByID" json:"banned_by,omitempty"`
}

// TableName specifies the table name for GORM.
func (ChatBan) TableName() string {
	return "chat_bans"
}

// HostBan is an admin-issued, host-level livestreaming ban. While one exists
// the user cannot create any room, in any state, until an admin unban.
type HostBan struct {
	UserID     uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BannedByID uint      `gorm:"not null" json:"banned_by_id"`
	Reason     string    `gorm:"type:text;default:''" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (HostBan) TableName() string {
	return "host_bans"
}
