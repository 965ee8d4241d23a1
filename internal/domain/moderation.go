package domain

import "time"

// Block is a one-directional block; at most one per ordered
// (blocker, blocked) pair.
type Block struct {
	ID         string    `json:"id"`
	BlockerUID string    `json:"blocker_uid"`
	BlockedUID string    `json:"blocked_uid"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportReason classifies a user report.
type ReportReason string

const (
	ReportSpam          ReportReason = "spam"
	ReportHarassment    ReportReason = "harassment"
	ReportInappropriate ReportReason = "inappropriate_content"
	ReportScam          ReportReason = "scam"
	ReportOther         ReportReason = "other"
)

// ValidReportReason reports whether r is a known reason.
func ValidReportReason(r string) bool {
	switch ReportReason(r) {
	case ReportSpam, ReportHarassment, ReportInappropriate, ReportScam, ReportOther:
		return true
	}
	return false
}

// Report detail length bounds.
const (
	MinReportDetails = 10
	MaxReportDetails = 2000
)

// Report records a complaint against a user. Only status may change after
// insert.
type Report struct {
	ID             string       `json:"id"`
	ReporterUID    string       `json:"reporter_uid"`
	ReportedUID    string       `json:"reported_uid"`
	ConversationID string       `json:"conversation_id,omitempty"`
	MessageID      string       `json:"message_id,omitempty"`
	Reason         ReportReason `json:"reason"`
	Details        string       `json:"details"`
	Status         string       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}
