package worker

import (
	"github.com/spec-kit/verification-service/internal/service"
)

// StartNotificationWorker registers the decision notice handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
