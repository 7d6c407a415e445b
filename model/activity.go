package model

import "time"

// ActivityLog is one entry of an owner's management audit trail.
type ActivityLog struct {
	Timestamp time.Time              `json:"timestamp" bson:"timestamp"`
	Action    string                 `json:"action" bson:"action"`
	Details   map[string]interface{} `json:"details" bson:"details"`
	IP        string                 `json:"ip" bson:"ip"`
	UserAgent string                 `json:"userAgent" bson:"userAgent"`
}

const (
	ActivityLogin            = "login"
	ActivityLoginFailed      = "login_failed"
	ActivityShortlinkCreated = "shortlink_created"
	ActivityShortlinkUpdated = "shortlink_updated"
	ActivityShortlinkDeleted = "shortlink_deleted"
	ActivityStatusChanged    = "status_changed"
	ActivityAPIKeyIssued     = "apikey_issued"
)

type ActivityListResponse struct {
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	Activities []ActivityLog `json:"activities"`
}
