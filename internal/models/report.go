package models

import "time"

// ReportStatus is the workflow state of a moderation report.
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// ReportReason enumerates the reasons a viewer can report a room.
type ReportReason string

const (
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonAbuse         ReportReason = "abuse"
	ReportReasonIllegal       ReportReason = "illegal_content"
	ReportReasonImpersonation ReportReason = "impersonation"
	ReportReasonOther         ReportReason = "other"
)

// ValidReportReason reports whether the given reason is a known enum value.
func ValidReportReason(r ReportReason) bool {
	switch r {
	case ReportReasonSpam, ReportReasonAbuse, ReportReasonIllegal,
		ReportReasonImpersonation, ReportReasonOther:
		return true
	}
	return false
}

// Report is one viewer report against a room. Reports against the same room are
// counted, not deduplicated; the derived pending count feeds the admin view.
type Report struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	RoomID      uint         `gorm:"not null;index" json:"room_id"`
	Room        Room         `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	ReporterID  uint         `gorm:"not null;index" json:"reporter_id"`
	Reason      ReportReason `gorm:"size:32;not null" json:"reason"`
	Description string       `gorm:"type:text" json:"description"`
	Status      ReportStatus `gorm:"size:16;not null;default:pending;index" json:"status"`

	ResolvedByID *uint      `json:"resolved_by_id,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Report) TableName() string {
	return "reports"
}

// RoomReportCount is a derived per-room pending report aggregate for admin listings.
type RoomReportCount struct {
	RoomID       uint      `json:"room_id"`
	PendingCount int64     `json:"pending_count"`
	LatestAt     time.Time `json:"latest_at"`
}
