package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
)

// AuditActions lists every recorded action
var AuditActions = []string{AuditActionCreate, AuditActionUpdate, AuditActionDelete}

// FieldChange is one field-level difference inside an audit entry.
type FieldChange struct {
	Field      string `json:"field"`
	FieldLabel string `json:"fieldLabel"`
	OldValue   string `json:"oldValue"`
	NewValue   string `json:"newValue"`
}

// AuditMetadata describes where a mutation came from.
type AuditMetadata struct {
	IPAddress string    `gorm:"size:45" json:"ipAddress"`
	UserAgent string    `gorm:"size:255" json:"userAgent"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditLog is an immutable record of one mutation to a Client.
// TradingCode is denormalized so history survives client deletion.
type AuditLog struct {
	ID            uint                             `gorm:"primaryKey" json:"id"`
	ClientID      uint                             `gorm:"index;not null" json:"clientId"`
	TradingCode   string                           `gorm:"size:100;index;not null" json:"tradingCode"`
	Action        string                           `gorm:"size:10;index;not null" json:"action"`
	EditedBy      string                           `gorm:"size:255;default:'Admin'" json:"editedBy"`
	EditedByEmail string                           `gorm:"size:255" json:"editedByEmail"`
	Changes       datatypes.JSONSlice[FieldChange] `json:"changes"`
	Metadata      AuditMetadata                    `gorm:"embedded;embeddedPrefix:metadata_" json:"metadata"`
	CreatedAt     time.Time                        `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "client_audit_logs"
}

// Actor identifies who performed a mutation.
type Actor struct {
	UserID    uint
	Name      string
	Email     string
	IPAddress string
	UserAgent string
}

// AuditStats aggregates the audit table.
type AuditStats struct {
	TotalLogs      int64            `json:"totalLogs"`
	ActionCounts   map[string]int64 `json:"actionCounts"`
	TopEditors     []EditorCount    `json:"topEditors"`
	RecentActivity []DayCount       `json:"recentActivity"`
}

// EditorCount is the number of entries written by one editor.
type EditorCount struct {
	EditedBy string `json:"editedBy"`
	Count    int64  `json:"count"`
}

// DayCount is the number of entries written on one day (YYYY-MM-DD).
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}
