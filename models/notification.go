package models

import "time"

type NotificationKind string

const (
	NotificationKindAdmin            NotificationKind = "admin"
	NotificationKindUserUploadFailed NotificationKind = "user_upload_failed"
	NotificationKindShareUpdate      NotificationKind = "share_update"
)

// Notification is written to the outbox table and delivered by the mailer, outside of this service
type Notification struct {
	Id          string
	Kind        NotificationKind
	Recipient   string
	Subject     string
	Body        string
	StudyId     *string
	StudyFileId *string
	CreatedAt   time.Time
}
