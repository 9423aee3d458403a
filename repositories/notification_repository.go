package repositories

import (
	"context"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories/dbmodels"
)

// CreateNotification writes the notification to the outbox, from which the mailer sends it
func (repo *StudyDbRepository) CreateNotification(ctx context.Context, exec Executor, notification models.Notification) error {
	_, err := ExecBuilder(
		ctx,
		exec,
		NewQueryBuilder().
			Insert(dbmodels.TABLE_NOTIFICATIONS).
			Columns("id", "kind", "recipient", "subject", "body", "study_id", "study_file_id").
			Values(
				notification.Id,
				notification.Kind,
				notification.Recipient,
				notification.Subject,
				notification.Body,
				notification.StudyId,
				notification.StudyFileId,
			),
	)
	return err
}
