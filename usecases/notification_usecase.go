package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases/executor_factory"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type notificationRepository interface {
	CreateNotification(ctx context.Context, exec repositories.Executor, notification models.Notification) error
}

// NotificationUsecase writes the notifications to the outbox. Notifying never fails from the point of view of the
// caller: errors are logged and reported to Sentry.
type NotificationUsecase struct {
	executorFactory executor_factory.ExecutorFactory
	repository      notificationRepository
	adminEmail      string
	environment     string
}

func NewNotificationUsecase(
	executorFactory executor_factory.ExecutorFactory,
	repository notificationRepository,
	adminEmail string,
	environment string,
) NotificationUsecase {
	return NotificationUsecase{
		executorFactory: executorFactory,
		repository:      repository,
		adminEmail:      adminEmail,
		environment:     environment,
	}
}

func (uc NotificationUsecase) NotifyAdmin(ctx context.Context, subject, body string, file models.StudyFile) {
	uc.send(ctx, models.Notification{
		Kind:        models.NotificationKindAdmin,
		Recipient:   uc.adminEmail,
		Subject:     fmt.Sprintf("[%s] %s", uc.environment, subject),
		Body:        body,
		StudyId:     &file.StudyId,
		StudyFileId: &file.Id,
	})
}

func (uc NotificationUsecase) NotifyUserUploadFailed(ctx context.Context, file models.StudyFile, study models.Study) {
	uc.send(ctx, models.Notification{
		Kind:      models.NotificationKindUserUploadFailed,
		Recipient: study.UserEmail,
		Subject:   fmt.Sprintf("Error: %s did not finish uploading to %s", file.UploadFileName, study.Name),
		Body: fmt.Sprintf("The upload of %s (%d bytes) to study %s did not complete and the file was removed. "+
			"Please upload the file again.", file.UploadFileName, file.UploadFileSize, study.Accession),
		StudyId:     &study.Id,
		StudyFileId: &file.Id,
	})
}

// NotifyShareUpdate tells the collaborators of the study about the changes. The mailer sends it to every share of
// the study, the recipient is the owner.
func (uc NotificationUsecase) NotifyShareUpdate(ctx context.Context, study models.Study, changes []string, userId string) {
	uc.send(ctx, models.Notification{
		Kind:      models.NotificationKindShareUpdate,
		Recipient: study.UserEmail,
		Subject:   fmt.Sprintf("Study %s has been updated", study.Accession),
		Body: fmt.Sprintf("The following changes were made to %s by user %s:\n- %s",
			study.Name, userId, strings.Join(changes, "\n- ")),
		StudyId: &study.Id,
	})
}

func (uc NotificationUsecase) send(ctx context.Context, notification models.Notification) {
	notification.Id = uuid.NewString()
	if err := uc.repository.CreateNotification(ctx, uc.executorFactory.NewExecutor(), notification); err != nil {
		utils.ReportSentryErrorWithTags(ctx, err, map[string]string{
			"notification_kind": string(notification.Kind),
		})
	}
}
